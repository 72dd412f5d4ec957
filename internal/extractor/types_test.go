package extractor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestResultJSON(t *testing.T) {
	r := NewResult("42")
	r.FunctionCalls.Add("ago")
	r.Tables.Add("T2")
	r.Tables.Add("T1")
	r.addJoin("inner", NewStringSet("T2"))
	r.addJoin("union", NewStringSet())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":"42","functionCalls":["ago"],"joins":{"inner":["T2"],"union":[]},"operators":[],"tables":["T1","T2"]}`,
		string(data))

	var decoded Result
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, r, &decoded)
}

func TestResultYAML(t *testing.T) {
	r := NewResult("42")
	r.Operators.Add("where")
	r.addJoin("leftouter", NewStringSet("T2"))

	data, err := yaml.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `id: "42"
functionCalls: []
joins:
    leftouter:
        - T2
operators:
    - where
tables: []
`, string(data))
}

func TestStringSetIgnoresEmpty(t *testing.T) {
	s := NewStringSet("a", "", "a", "b")
	assert.Len(t, s, 2)
	assert.False(t, s.Has(""))
	assert.Equal(t, []string{"a", "b"}, s.Sorted())
}

func TestResultWithID(t *testing.T) {
	r := NewResult("one")
	r.Tables.Add("T")
	r.addJoin("inner", NewStringSet("U"))

	c := r.WithID("two")
	c.Tables.Add("V")
	c.Joins["inner"].Add("W")

	assert.Equal(t, "two", c.ID)
	assert.Equal(t, []string{"T"}, r.Tables.Sorted())
	assert.Equal(t, []string{"U"}, r.Joins["inner"].Sorted())
	assert.Equal(t, []string{"T", "V"}, c.Tables.Sorted())
}
