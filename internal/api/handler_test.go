package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuttlecrew/routeplanner/internal/routing/orchestrator"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/solverclient"
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

func fakeRoadServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case len(r.URL.Path) >= 7 && r.URL.Path[:7] == "/table/":
			w.Write([]byte(`{"code":"Ok","distances":[[0,1000],[1000,0]],"durations":[[0,120],[120,0]]}`))
		default:
			w.Write([]byte(`{"code":"Ok","routes":[{"distance":1000,"duration":150,"geometry":"","legs":[{"distance":1000,"duration":150}]}],"waypoints":[{"location":[0,0],"waypoint_index":0},{"location":[0,0],"waypoint_index":1}]}`))
		}
	}))
}

func testRequestBody() PlanRequest {
	return PlanRequest{
		RequestID: "req-1",
		Employees: []EmployeeRequest{
			{EmpCode: "E1", Lat: 12.9, Lng: 77.5, Gender: "M"},
		},
		Facility:              FacilityRequest{Lat: 13.0, Lng: 77.6, FacilityType: "CDC"},
		ShiftTime:             "0900",
		Date:                  "2026-07-30",
		TripType:              "PICKUP",
		PickupTimePerEmployeeSeconds: 60,
		Profile: ProfileRequest{
			MaxDurationSeconds: 3600,
			Fleet:              []FleetEntryRequest{{Type: "sedan", Capacity: 5, Count: 1}},
			FacilityType:       "CDC",
		},
	}
}

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/v1/plan", h.Plan)
	return r
}

func TestPlanEndpointRoutesSuccessfully(t *testing.T) {
	road := fakeRoadServer(t)
	defer road.Close()
	script := writeSolverScript(t, `echo '{"routes":[{"vehicle_index":0,"node_indices":[0,1,0]}],"dropped_node_indices":[]}'`)

	roadClient := roadclient.New(roadclient.Config{BaseURL: road.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: script})
	o := orchestrator.New(roadClient, solverClient, nil, nil)

	h := NewHandler(o, nil)
	router := setupRouter(h)

	body, err := json.Marshal(testRequestBody())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestPlanEndpointRejectsOutOfBoundsCoordinates(t *testing.T) {
	h := NewHandler(nil, nil)
	router := setupRouter(h)

	reqBody := testRequestBody()
	reqBody.Facility.Lat = 51.5 // London, outside India bounds
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanEndpointRejectsMissingFleet(t *testing.T) {
	h := NewHandler(nil, nil)
	router := setupRouter(h)

	reqBody := testRequestBody()
	reqBody.Profile.Fleet = nil
	body, err := json.Marshal(reqBody)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPlanEndpointTranslatesRoadServiceUnavailable(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer down.Close()

	roadClient := roadclient.New(roadclient.Config{BaseURL: down.URL})
	solverClient := solverclient.New(solverclient.Config{BinaryPath: "unused"})
	o := orchestrator.New(roadClient, solverClient, nil, nil)

	h := NewHandler(o, nil)
	router := setupRouter(h)

	body, err := json.Marshal(testRequestBody())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/plan", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
