package parser

import "strings"

// Catalog answers whether a name is a known table. The binder consults it
// before falling back to positional typing.
type Catalog interface {
	HasTable(name string) bool
}

// TableSet is a Catalog backed by a fixed set of table names
type TableSet map[string]struct{}

// NewTableSet builds a TableSet, dropping blank names
func NewTableSet(names ...string) TableSet {
	set := make(TableSet, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// HasTable implements Catalog
func (s TableSet) HasTable(name string) bool {
	_, ok := s[name]
	return ok
}

// EmptyCatalog returns the default catalog, which knows no tables
func EmptyCatalog() Catalog {
	return TableSet{}
}
