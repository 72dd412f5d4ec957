package extractor

import (
	"encoding/json"
	"sort"
)

// StringSet is a set of non-empty strings. It serializes as a sorted array.
type StringSet map[string]struct{}

// NewStringSet creates a set holding items
func NewStringSet(items ...string) StringSet {
	s := make(StringSet, len(items))
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item. Empty strings are ignored.
func (s StringSet) Add(item string) {
	if item == "" {
		return
	}
	s[item] = struct{}{}
}

// AddAll inserts every member of other
func (s StringSet) AddAll(other StringSet) {
	for item := range other {
		s.Add(item)
	}
}

// Has reports whether item is in the set
func (s StringSet) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in ascending order
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for item := range s {
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array, never null
func (s StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of strings
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewStringSet(items...)
	return nil
}

// MarshalYAML encodes the set as a sorted sequence
func (s StringSet) MarshalYAML() (interface{}, error) {
	return s.Sorted(), nil
}

// Result is the metadata extracted from one query
type Result struct {
	ID            string               `json:"id" yaml:"id"`
	FunctionCalls StringSet            `json:"functionCalls" yaml:"functionCalls"`
	Joins         map[string]StringSet `json:"joins" yaml:"joins"`
	Operators     StringSet            `json:"operators" yaml:"operators"`
	Tables        StringSet            `json:"tables" yaml:"tables"`
}

// NewResult creates an empty result for the query id
func NewResult(id string) *Result {
	return &Result{
		ID:            id,
		FunctionCalls: NewStringSet(),
		Joins:         make(map[string]StringSet),
		Operators:     NewStringSet(),
		Tables:        NewStringSet(),
	}
}

// addJoin merges targets into the set recorded for kind. The entry is
// created even when targets is empty.
func (r *Result) addJoin(kind string, targets StringSet) {
	set, ok := r.Joins[kind]
	if !ok {
		set = NewStringSet()
		r.Joins[kind] = set
	}
	set.AddAll(targets)
}

// WithID returns a deep copy of r carrying id
func (r *Result) WithID(id string) *Result {
	c := NewResult(id)
	c.FunctionCalls.AddAll(r.FunctionCalls)
	c.Operators.AddAll(r.Operators)
	c.Tables.AddAll(r.Tables)
	for kind, targets := range r.Joins {
		c.addJoin(kind, targets)
	}
	return c
}
