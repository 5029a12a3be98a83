package matrixbuilder

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

func TestBuildAssemblesFacilityFirst(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","distances":[[0,100,200],[100,0,150],[200,150,0]],"durations":[[0,60,90],[60,0,80],[90,80,0]]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	b := New(road)

	facility := types.Facility{Lat: 12.97, Lng: 77.59, FacilityType: types.FacilityCDC}
	employees := []types.Employee{
		{EmpCode: "E1", Lat: 12.98, Lng: 77.60},
		{EmpCode: "E2", Lat: 12.93, Lng: 77.61},
	}

	result, err := b.Build(context.Background(), facility, employees)
	require.NoError(t, err)

	assert.Equal(t, 3, result.PointMap.Len())
	assert.Equal(t, "E1", result.PointMap.EmployeeAt(1).EmpCode)
	assert.Equal(t, "E2", result.PointMap.EmployeeAt(2).EmpCode)
	assert.Equal(t, 100.0, result.Distances[0][1])
}

func TestBuildNoCandidates(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	b := New(road)

	_, err := b.Build(context.Background(), types.Facility{}, nil)
	assert.Error(t, err)
}

func TestBuildRejectsMismatchedMatrixSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","distances":[[0,100],[100,0]],"durations":[[0,60],[60,0]]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	b := New(road)

	employees := []types.Employee{{EmpCode: "E1"}, {EmpCode: "E2"}}
	_, err := b.Build(context.Background(), types.Facility{}, employees)
	assert.Error(t, err)
}
