// Package catalog loads the table list the binder uses to recognize table
// names outside tabular positions.
//
// A catalog file is YAML:
//
//	tables:
//	  - SecurityEvent
//	  - name: SigninLogs
//	    columns: [TimeGenerated, UserPrincipalName]
package catalog

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nnaka2992/kql-extract/internal/parser"
)

// Table is one catalog entry
type Table struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns,omitempty"`
}

// UnmarshalYAML accepts either a bare table name or a mapping
func (t *Table) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		return node.Decode(&t.Name)
	}
	type plain Table
	return node.Decode((*plain)(t))
}

type yamlRoot struct {
	Tables []Table `yaml:"tables"`
}

// Catalog is a set of known tables. It implements parser.Catalog.
type Catalog struct {
	tables map[string]Table
}

var _ parser.Catalog = (*Catalog)(nil)

// Empty returns a catalog with no tables
func Empty() *Catalog {
	return &Catalog{tables: map[string]Table{}}
}

// Load reads a catalog file. An empty path yields the empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Empty(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes catalog YAML
func Parse(data []byte) (*Catalog, error) {
	var root yamlRoot
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := Empty()
	for i, t := range root.Tables {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			return nil, fmt.Errorf("table %d has no name", i+1)
		}
		if _, dup := c.tables[t.Name]; dup {
			return nil, fmt.Errorf("table %q listed more than once", t.Name)
		}
		c.tables[t.Name] = t
	}
	return c, nil
}

// HasTable reports whether name is a known table. Names are case
// sensitive, as they are in queries.
func (c *Catalog) HasTable(name string) bool {
	_, ok := c.tables[name]
	return ok
}

// Columns returns the declared columns of a table, if any
func (c *Catalog) Columns(name string) ([]string, bool) {
	t, ok := c.tables[name]
	if !ok {
		return nil, false
	}
	return t.Columns, true
}

// Tables returns the table names in ascending order
func (c *Catalog) Tables() []string {
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tables
func (c *Catalog) Len() int {
	return len(c.tables)
}
