package polish

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/matrixbuilder"
	"github.com/shuttlecrew/routeplanner/internal/routing/solverclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "solver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func samplePointMap() matrixbuilder.PointMap {
	return matrixbuilder.PointMap{
		Facility: types.Facility{Lat: 0, Lng: 0},
		Employees: []types.Employee{
			{EmpCode: "E1"},
			{EmpCode: "E2"},
			{EmpCode: "E3"},
		},
	}
}

func TestPolishSkipsSingleEmployeeBatch(t *testing.T) {
	p := New(solverclient.New(solverclient.Config{BinaryPath: "unused"}))
	pm := matrixbuilder.PointMap{Facility: types.Facility{}, Employees: []types.Employee{{EmpCode: "E1"}}}

	result, err := p.Polish(context.Background(), pm, nil, nil, types.Profile{}, types.Pickup, 3600, Pin{})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, pm.Employees, result.Employees)
}

func TestPolishAcceptsValidReorder(t *testing.T) {
	script := writeScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,2,1,3,0]}],"dropped_node_indices":[]}'`)
	p := New(solverclient.New(solverclient.Config{BinaryPath: script}))

	pm := samplePointMap()
	result, err := p.Polish(context.Background(), pm, dummyMatrix(4), dummyMatrix(4), types.Profile{}, types.Pickup, 3600, Pin{})
	require.NoError(t, err)
	assert.True(t, result.Changed)
	require.Len(t, result.Employees, 3)
	assert.Equal(t, "E2", result.Employees[0].EmpCode)
	assert.Equal(t, "E1", result.Employees[1].EmpCode)
	assert.Equal(t, "E3", result.Employees[2].EmpCode)
}

func TestPolishRevertsWhenNodesDropped(t *testing.T) {
	script := writeScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,1,0]}],"dropped_node_indices":[3]}'`)
	p := New(solverclient.New(solverclient.Config{BinaryPath: script}))

	pm := samplePointMap()
	result, err := p.Polish(context.Background(), pm, dummyMatrix(4), dummyMatrix(4), types.Profile{}, types.Pickup, 3600, Pin{})
	require.NoError(t, err)
	assert.False(t, result.Changed)
	assert.Equal(t, pm.Employees, result.Employees)
}

func TestPolishRevertsWhenPinnedSeatViolated(t *testing.T) {
	script := writeScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,2,1,3,0]}],"dropped_node_indices":[]}'`)
	p := New(solverclient.New(solverclient.Config{BinaryPath: script}))

	pm := samplePointMap()
	pin := Pin{EmpCode: "E1", AtStart: true}
	result, err := p.Polish(context.Background(), pm, dummyMatrix(4), dummyMatrix(4), types.Profile{}, types.Pickup, 3600, pin)
	require.NoError(t, err)
	// solver put E2 (node 2) first, not the pinned E1 (node 1) -> revert
	assert.False(t, result.Changed)
}

func TestPolishRevertsOnSolverFailure(t *testing.T) {
	script := writeScript(t, `exit 1`)
	p := New(solverclient.New(solverclient.Config{BinaryPath: script}))

	pm := samplePointMap()
	result, err := p.Polish(context.Background(), pm, dummyMatrix(4), dummyMatrix(4), types.Profile{}, types.Pickup, 3600, Pin{})
	require.NoError(t, err)
	assert.False(t, result.Changed)
}

func dummyMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
	}
	return m
}
