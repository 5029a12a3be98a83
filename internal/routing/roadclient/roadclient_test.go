package roadclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
)

func TestIsAvailableOk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":100,"duration":60,"geometry":"","legs":[{"distance":100,"duration":60}]}],"waypoints":[{"location":[77.59,12.97],"waypoint_index":0},{"location":[77.61,12.93],"waypoint_index":1}]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	assert.True(t, c.IsAvailable(context.Background()))
}

func TestIsAvailableNonOk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	assert.False(t, c.IsAvailable(context.Background()))
}

func TestRouteParsesLegsAndWaypoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":5000,"duration":600,"geometry":"abc","legs":[{"distance":2500,"duration":300},{"distance":2500,"duration":300}]}],"waypoints":[{"location":[77.59,12.97],"waypoint_index":0},{"location":[77.60,12.98],"waypoint_index":2},{"location":[77.61,12.93],"waypoint_index":1}]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	result, err := c.Route(context.Background(), []geo.Point{
		{Lat: 12.97, Lng: 77.59},
		{Lat: 12.98, Lng: 77.60},
		{Lat: 12.93, Lng: 77.61},
	}, true)

	require.NoError(t, err)
	assert.Equal(t, 5000.0, result.TotalDistance)
	assert.Equal(t, 600.0, result.TotalDuration)
	require.Len(t, result.Legs, 2)
	require.Len(t, result.Waypoints, 3)
	// The service reordered stop 1 to matched index 2 — callers must read this,
	// never assume input order.
	assert.Equal(t, 2, result.Waypoints[1].MatchedIndex)
}

func TestRouteHTTPErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	_, err := c.Route(context.Background(), []geo.Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, false)

	require.Error(t, err)
	rerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, KindTransient, rerr.Kind)
	assert.Equal(t, 1, calls, "4xx/5xx responses must not be retried")
}

func TestTableParsesMatrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","distances":[[0,100],[100,0]],"durations":[[0,60],[60,0]]}`))
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL})
	result, err := c.Table(context.Background(), []geo.Point{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, 100.0, result.Distances[0][1])
	assert.Equal(t, 60.0, result.Durations[1][0])
}

func TestRouteRejectsSingleCoordinate(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"})
	_, err := c.Route(context.Background(), []geo.Point{{Lat: 1, Lng: 1}}, false)
	assert.Error(t, err)
}
