package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineResult struct {
	line    string
	tooLong bool
}

func readAll(t *testing.T, input string, limit int) []lineResult {
	t.Helper()
	lr := newLineReader(strings.NewReader(input), limit)
	var got []lineResult
	for {
		line, tooLong, err := lr.next()
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
		got = append(got, lineResult{line, tooLong})
	}
}

func TestLineReader(t *testing.T) {
	big := strings.Repeat("x", 200*1024)

	tests := []struct {
		name  string
		input string
		limit int
		want  []lineResult
	}{
		{
			name:  "lines",
			input: "a,1\nb,2\n",
			limit: 10,
			want:  []lineResult{{"a,1", false}, {"b,2", false}},
		},
		{
			name:  "no trailing newline",
			input: "a,1\nb,2",
			limit: 10,
			want:  []lineResult{{"a,1", false}, {"b,2", false}},
		},
		{
			name:  "blank lines kept",
			input: "\n\na\n",
			limit: 10,
			want:  []lineResult{{"", false}, {"", false}, {"a", false}},
		},
		{
			name:  "carriage return left for framing",
			input: "a,1\r\n",
			limit: 10,
			want:  []lineResult{{"a,1\r", false}},
		},
		{
			name:  "exactly at the limit",
			input: "abcde\nf\n",
			limit: 5,
			want:  []lineResult{{"abcde", false}, {"f", false}},
		},
		{
			name:  "over the limit is dropped",
			input: "abcdef\nf\n",
			limit: 5,
			want:  []lineResult{{"", true}, {"f", false}},
		},
		{
			name:  "longer than the read buffer",
			input: big + "\nnext\n",
			limit: len(big),
			want:  []lineResult{{big, false}, {"next", false}},
		},
		{
			name:  "dropped across read buffers",
			input: big + "\nnext",
			limit: 100 * 1024,
			want:  []lineResult{{"", true}, {"next", false}},
		},
		{
			name:  "empty input",
			input: "",
			limit: 5,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, readAll(t, tt.input, tt.limit))
		})
	}
}
