package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encode(text string) string {
	return base64.StdEncoding.EncodeToString([]byte(text))
}

// runCaptured calls run with stdin fed from stdin and returns the exit
// code with everything written to stdout and stderr
func runCaptured(t *testing.T, args []string, stdin string) (int, string, string) {
	t.Helper()

	oldStdout, oldStderr, oldStdin := os.Stdout, os.Stderr, os.Stdin
	defer func() {
		os.Stdout, os.Stderr, os.Stdin = oldStdout, oldStderr, oldStdin
	}()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	rErr, wErr, err := os.Pipe()
	require.NoError(t, err)
	rIn, wIn, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout, os.Stderr, os.Stdin = w, wErr, rIn
	_, err = wIn.WriteString(stdin)
	require.NoError(t, err)
	require.NoError(t, wIn.Close())

	exitCode := run(args)

	require.NoError(t, w.Close())
	require.NoError(t, wErr.Close())

	var stdout, stderr bytes.Buffer
	_, _ = stdout.ReadFrom(r)
	_, _ = stderr.ReadFrom(rErr)
	return exitCode, stdout.String(), stderr.String()
}

func TestRun(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		stdin      string
		wantExit   int
		wantOutput string // substring to check
		wantError  string // substring in stderr
	}{
		{
			name:       "help flag",
			args:       []string{"-h"},
			wantExit:   0,
			wantOutput: "Usage:",
		},
		{
			name:       "version flag",
			args:       []string{"--version"},
			wantExit:   0,
			wantOutput: "kql-extract version 0.1.0",
		},
		{
			name:      "too many arguments",
			args:      []string{"a.kql", "b.kql"},
			wantExit:  2,
			wantError: "accepts at most 1 arg(s)",
		},
		{
			name:      "unknown flag",
			args:      []string{"--bogus"},
			wantExit:  2,
			wantError: "unknown flag",
		},
		{
			name:       "file input",
			args:       []string{"--id", "q1", "testdata/join.kql"},
			wantExit:   0,
			wantOutput: `{"id":"q1","functionCalls":["ago"],"joins":{"inner":["SigninLogs"]},"operators":["where"],"tables":["SecurityEvent","SigninLogs"]}` + "\n",
		},
		{
			name:       "file with BOM",
			args:       []string{"--id", "q2", "testdata/bom.kql"},
			wantExit:   0,
			wantOutput: `"tables":["T"]`,
		},
		{
			name:       "syntax error prints diagnostics",
			args:       []string{"testdata/bad.kql"},
			wantExit:   1,
			wantOutput: "[15..19]: Unterminated string literal.\n",
			wantError:  "syntax error",
		},
		{
			name:      "non-existent file",
			args:      []string{"does-not-exist.kql"},
			wantExit:  2,
			wantError: "no such file",
		},
		{
			name:       "YAML output",
			args:       []string{"-o", "yaml", "--id", "q3", "testdata/join.kql"},
			wantExit:   0,
			wantOutput: "id: q3\n",
		},
		{
			name:      "invalid output format",
			args:      []string{"-o", "xml", "testdata/join.kql"},
			wantExit:  2,
			wantError: `unknown output format "xml"`,
		},
		{
			name:      "missing catalog",
			args:      []string{"--catalog", "testdata/missing.yaml", "testdata/join.kql"},
			wantExit:  2,
			wantError: "reading catalog",
		},
		{
			name:       "catalog tables",
			args:       []string{"--catalog", "testdata/catalog.yaml", "--id", "q4", "testdata/scalar.kql"},
			wantExit:   0,
			wantOutput: `"tables":["Heartbeat","T"]`,
		},
		{
			name:       "normalized join kinds",
			args:       []string{"--normalize-join-kinds", "--id", "q5", "testdata/anti.kql"},
			wantExit:   0,
			wantOutput: `"joins":{"leftanti":["U"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exitCode, stdout, stderr := runCaptured(t, tt.args, tt.stdin)

			assert.Equal(t, tt.wantExit, exitCode, "stderr: %s", stderr)
			if tt.wantOutput != "" {
				assert.Contains(t, stdout, tt.wantOutput)
			}
			if tt.wantError != "" {
				assert.Contains(t, stderr, tt.wantError)
			}
		})
	}
}

func TestRunDefaultID(t *testing.T) {
	exitCode, stdout, _ := runCaptured(t, []string{"testdata/join.kql"}, "")
	require.Equal(t, 0, exitCode)

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	_, err := uuid.Parse(result["id"].(string))
	assert.NoError(t, err)
}

func TestRunStream(t *testing.T) {
	stdin := strings.Join([]string{
		"1," + encode("T1 | join T2 on a"),
		"not a record",
		"2," + encode("T1 | where a == 'x"),
		"3,***",
		"4," + encode("union A, B | count"),
		"",
	}, "\n")

	exitCode, stdout, stderr := runCaptured(t, nil, stdin)
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	assert.Equal(t,
		`{"id":"1","functionCalls":[],"joins":{"inner":["T2"]},"operators":[],"tables":["T1","T2"]}`+"\n"+
			`{"id":"4","functionCalls":[],"joins":{"union":["A","B"]},"operators":["count"],"tables":["A","B"]}`+"\n",
		stdout)

	assert.Contains(t, stderr, `msg="syntax error" id=2 line=3`)
	assert.Contains(t, stderr, `msg="extraction failed" id=3 line=4`)
	assert.NotContains(t, stderr, "not a record")
}

func TestRunStreamParallel(t *testing.T) {
	var lines, want []string
	for i := range 20 {
		id := string(rune('a' + i))
		lines = append(lines, id+","+encode("T | take 1"))
		want = append(want, `{"id":"`+id+`","functionCalls":[],"joins":{},"operators":["take"],"tables":["T"]}`)
	}

	exitCode, stdout, stderr := runCaptured(t, []string{"--workers", "4", "--input", "testdata/stream.txt"}, "")
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)
	assert.Empty(t, stdout)

	require.NoError(t, os.WriteFile("testdata/stream.txt", []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	exitCode, stdout, stderr = runCaptured(t, []string{"--workers", "4", "--input", "testdata/stream.txt"}, "")
	require.Equal(t, 0, exitCode, "stderr: %s", stderr)

	got := strings.Split(strings.TrimSuffix(stdout, "\n"), "\n")
	sort.Strings(got)
	assert.Equal(t, want, got)
}

func TestRunStreamMissingInput(t *testing.T) {
	exitCode, _, stderr := runCaptured(t, []string{"--input", "testdata/nope.txt"}, "")
	assert.Equal(t, 2, exitCode)
	assert.Contains(t, stderr, "opening input")
}

// Test data setup
func TestMain(m *testing.M) {
	_ = os.MkdirAll("testdata", 0o755)

	files := map[string]string{
		"join.kql":     "SecurityEvent\n| where TimeGenerated > ago(1d)\n| join SigninLogs on Account\n",
		"bom.kql":      "\ufeffT | take 10",
		"bad.kql":      "T | where a == 'abc",
		"scalar.kql":   "T | extend h = Heartbeat",
		"anti.kql":     "T | join kind=anti U on a",
		"catalog.yaml": "tables:\n  - Heartbeat\n",
		"stream.txt":   "",
	}
	for name, content := range files {
		_ = os.WriteFile("testdata/"+name, []byte(content), 0o644)
	}

	code := m.Run()

	_ = os.RemoveAll("testdata")

	os.Exit(code)
}
