package solverclient

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript writes a tiny shell script that echoes the given stdout
// (optionally preceded by a log line) and exits with the given code, and
// returns its path. Solver binaries are shelled out via os/exec so a shell
// script is a faithful stand-in for the real solver process.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess script fixtures require a POSIX shell")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "solver.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestSolveParsesCleanSolution(t *testing.T) {
	script := writeScript(t, `cat <<'EOF'
{"routes":[{"vehicle_index":0,"node_indices":[0,1,2,0]}],"dropped_node_indices":[]}
EOF`)

	c := New(Config{BinaryPath: script})
	sol, err := c.Solve(context.Background(), Problem{NumVehicles: 1})

	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, []int{0, 1, 2, 0}, sol.Routes[0].NodeIndices)
}

func TestSolveToleratesTrailingLogLines(t *testing.T) {
	script := writeScript(t, `
echo "INFO: solving..."
echo '{"routes":[{"vehicle_index":0,"node_indices":[0,1,0]}],"dropped_node_indices":[]}'
echo "INFO: done"
`)

	c := New(Config{BinaryPath: script})
	sol, err := c.Solve(context.Background(), Problem{NumVehicles: 1})

	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
}

func TestSolveNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "boom" 1>&2; exit 1`)

	c := New(Config{BinaryPath: script})
	_, err := c.Solve(context.Background(), Problem{NumVehicles: 1})

	require.Error(t, err)
	serr, ok := err.(*Error)
	require.True(t, ok)
	assert.Contains(t, serr.Stderr, "boom")
}

func TestSolveErrorField(t *testing.T) {
	script := writeScript(t, `echo '{"routes":[],"error":"infeasible"}'`)

	c := New(Config{BinaryPath: script})
	_, err := c.Solve(context.Background(), Problem{NumVehicles: 1})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "infeasible")
}

func TestSolveUnparsableOutput(t *testing.T) {
	script := writeScript(t, `echo "not json at all"`)

	c := New(Config{BinaryPath: script})
	_, err := c.Solve(context.Background(), Problem{NumVehicles: 1})

	require.Error(t, err)
}

func TestLastBalancedObjectSkipsBracesInStrings(t *testing.T) {
	input := []byte(`log line with a { brace
{"routes":[],"note":"contains } a brace"}`)

	start, end, ok := lastBalancedObject(input)
	require.True(t, ok)
	assert.Contains(t, string(input[start:end]), `"note"`)
}
