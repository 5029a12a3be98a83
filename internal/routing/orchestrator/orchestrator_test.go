package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/solverclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

func writeSolverScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("subprocess script fixtures require a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "solver.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

// fakeRoadServer builds an httptest server answering both /route and
// /table with fixed, always-passing responses scaled to n points.
func fakeRoadServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case len(r.URL.Path) >= 7 && r.URL.Path[:7] == "/table/":
			n := strings.Count(r.URL.Path, ";") + 1
			distances := make([][]float64, n)
			durations := make([][]float64, n)
			for i := 0; i < n; i++ {
				distances[i] = make([]float64, n)
				durations[i] = make([]float64, n)
				for j := 0; j < n; j++ {
					steps := i - j
					if steps < 0 {
						steps = -steps
					}
					distances[i][j] = float64(steps) * 1000
					durations[i][j] = float64(steps) * 120
				}
			}
			json.NewEncoder(w).Encode(map[string]interface{}{"code": "Ok", "distances": distances, "durations": durations})
		default:
			w.Write([]byte(`{"code":"Ok","routes":[{"distance":2000,"duration":300,"geometry":"","legs":[{"distance":1000,"duration":150},{"distance":1000,"duration":150}]}],"waypoints":[{"location":[0,0],"waypoint_index":0},{"location":[0,0],"waypoint_index":1}]}`))
		}
	}))
}

func TestPlanRoutesTwoEmployeesInOneVehicle(t *testing.T) {
	road := fakeRoadServer(t)
	defer road.Close()

	script := writeSolverScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,1,2,0]}],"dropped_node_indices":[]}'`)

	roadClient := roadclient.New(roadclient.Config{BaseURL: road.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: script})

	o := New(roadClient, solverClient, nil, nil)

	input := types.PlanningInput{
		RequestID: "req-1",
		Employees: []types.Employee{
			{EmpCode: "E1", Lat: 12.90, Lng: 77.50, Gender: types.Male},
			{EmpCode: "E2", Lat: 12.91, Lng: 77.505, Gender: types.Male},
		},
		Facility:             types.Facility{Lat: 13.0, Lng: 77.6, FacilityType: types.FacilityCDC},
		ShiftTime:            "0900",
		Date:                 "2026-07-30",
		TripType:             types.Pickup,
		PickupTimePerEmployee: 60 * time.Second,
		ReportingTime:         0,
		Profile: types.Profile{
			MaxDuration: time.Hour,
			Fleet:       []types.FleetEntry{{Type: "sedan", Capacity: 5, Count: 1}},
		},
	}

	output, err := o.Plan(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, output)
	assert.Equal(t, 2, output.TotalEmployees)
	assert.Equal(t, 2, output.TotalRoutedEmployees)
	assert.Empty(t, output.UnroutedEmployees)
	require.Len(t, output.Routes, 1)
	assert.Equal(t, "sedan", output.Routes[0].VehicleType)
}

func TestPlanAbortsWhenRoadServiceUnavailable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer down.Close()

	roadClient := roadclient.New(roadclient.Config{BaseURL: down.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: "unused"})
	o := New(roadClient, solverClient, nil, nil)

	input := types.PlanningInput{
		RequestID: "req-2",
		Employees: []types.Employee{{EmpCode: "E1", Lat: 1, Lng: 1}},
		Facility:  types.Facility{Lat: 0, Lng: 0},
		TripType:  types.Pickup,
		Profile:   types.Profile{MaxDuration: time.Hour},
	}

	_, err := o.Plan(context.Background(), input)
	require.Error(t, err)
	rerr, ok := err.(*roadclient.Error)
	require.True(t, ok)
	assert.Equal(t, roadclient.KindUnavailable, rerr.Kind)
}

func TestPlanEmitsUnroutedWhenPoolNeverSeeds(t *testing.T) {
	// Road service always reports an unreachable duration, so the heuristic
	// seed check never passes and nothing gets routed.
	road := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":999999,"duration":999999,"geometry":"","legs":[{"distance":999999,"duration":999999}]}],"waypoints":[]}`))
	}))
	defer road.Close()

	roadClient := roadclient.New(roadclient.Config{BaseURL: road.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: "unused"})
	o := New(roadClient, solverClient, nil, nil)

	input := types.PlanningInput{
		RequestID: "req-3",
		Employees: []types.Employee{{EmpCode: "E1", Lat: 1, Lng: 1}},
		Facility:  types.Facility{Lat: 0, Lng: 0},
		TripType:  types.Pickup,
		Profile:   types.Profile{MaxDuration: time.Second, Fleet: []types.FleetEntry{{Type: "van", Capacity: 5, Count: 1}}},
	}

	output, err := o.Plan(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 0, output.TotalRoutedEmployees)
	require.Len(t, output.UnroutedEmployees, 1)
	assert.Equal(t, "E1", output.UnroutedEmployees[0].EmpCode)
}

type recordingSink struct {
	events []string
}

func (r *recordingSink) Publish(requestID, eventType string, data interface{}) {
	r.events = append(r.events, eventType)
}

func TestPlanPublishesCommitEvents(t *testing.T) {
	road := fakeRoadServer(t)
	defer road.Close()
	script := writeSolverScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,1,0]}],"dropped_node_indices":[]}'`)

	roadClient := roadclient.New(roadclient.Config{BaseURL: road.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: script})

	sink := &recordingSink{}
	o := New(roadClient, solverClient, nil, sink)

	input := types.PlanningInput{
		RequestID: "req-4",
		Employees: []types.Employee{{EmpCode: "E1", Lat: 12.9, Lng: 77.5, Gender: types.Male}},
		Facility:  types.Facility{Lat: 13.0, Lng: 77.6},
		TripType:  types.Pickup,
		Profile:   types.Profile{MaxDuration: time.Hour, Fleet: []types.FleetEntry{{Type: "sedan", Capacity: 5, Count: 1}}},
	}

	_, err := o.Plan(context.Background(), input)
	require.NoError(t, err)
	assert.Contains(t, sink.events, "route_committed")
}
