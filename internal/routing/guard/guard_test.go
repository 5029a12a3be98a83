package guard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

func coordsFor(employees []types.Employee) []geo.Point {
	points := make([]geo.Point, len(employees))
	for i, e := range employees {
		points[i] = geo.Point{Lat: e.Lat, Lng: e.Lng}
	}
	return points
}

func TestEvaluateSkipsWhenGuardDisabled(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	s := New(road, nil)

	employees := []types.Employee{{EmpCode: "E1", Gender: types.Female}}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, false, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.False(t, out.GuardNeeded)
	assert.False(t, out.Swapped)
}

func TestEvaluateNoGuardWhenCriticalSeatIsMale(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	s := New(road, nil)

	employees := []types.Employee{{EmpCode: "E1", Gender: types.Male}, {EmpCode: "E2", Gender: types.Female}}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, true, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.False(t, out.GuardNeeded)
	assert.False(t, out.Swapped)
}

func TestEvaluateLoneFemaleNeedsGuard(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	s := New(road, nil)

	employees := []types.Employee{{EmpCode: "E1", Gender: types.Female}}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, true, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.True(t, out.GuardNeeded)
	assert.False(t, out.Swapped)
}

func TestEvaluateNoMaleWithinRadiusFallsBackToGuardNeeded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// male is 10km away, beyond MaxSwapDistanceKm
		w.Write([]byte(`{"code":"Ok","distances":[[0,10000]],"durations":[[0,600]]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	s := New(road, nil)

	employees := []types.Employee{
		{EmpCode: "female", Gender: types.Female},
		{EmpCode: "male", Gender: types.Male},
	}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, true, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.True(t, out.GuardNeeded)
	assert.False(t, out.Swapped)
}

func TestEvaluateSwapsWithNearestMaleWithinRadius(t *testing.T) {
	callCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callCount++
		if r.URL.Path[:7] == "/table/" {
			w.Write([]byte(`{"code":"Ok","distances":[[0,1000]],"durations":[[0,60]]}`))
			return
		}
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":3000,"duration":300,"geometry":"xyz","legs":[{"distance":1500,"duration":150},{"distance":1500,"duration":150}]}],"waypoints":[{"location":[0,0],"waypoint_index":0},{"location":[0,0],"waypoint_index":1}]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	s := New(road, nil)

	employees := []types.Employee{
		{EmpCode: "female", Gender: types.Female},
		{EmpCode: "male", Gender: types.Male},
	}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, true, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.True(t, out.Swapped)
	assert.False(t, out.GuardNeeded)
	assert.Equal(t, "male", out.Employees[0].EmpCode)
}

func TestNightShiftPredicateCanSuppressGuard(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	neverActive := func(shiftTime string, tripType types.TripType, timings map[string]types.GuardTiming) bool {
		return false
	}
	s := New(road, neverActive)

	employees := []types.Employee{{EmpCode: "E1", Gender: types.Female}}
	out, err := s.Evaluate(context.Background(), employees, types.Facility{}, types.Pickup, true, "0900", nil, coordsFor)
	require.NoError(t, err)
	assert.False(t, out.GuardNeeded)
}
