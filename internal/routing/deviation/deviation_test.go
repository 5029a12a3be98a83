package deviation

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

func TestCheckLenientWithNoRules(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	c := New(road)

	profile := types.Profile{FacilityType: types.FacilityCDC}
	ok, err := c.Check(context.Background(), nil, types.Facility{}, profile, 999999)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectRuleExactMatch(t *testing.T) {
	rules := []types.RuleTier{
		{MinDistKm: 0, MaxDistKm: 10, MaxTotalOneWayKm: 15},
		{MinDistKm: 10, MaxDistKm: 20, MaxTotalOneWayKm: 25},
	}
	rule := selectRule(rules, 5)
	assert.Equal(t, 15.0, rule.MaxTotalOneWayKm)
}

func TestSelectRuleEpsilonBoundary(t *testing.T) {
	rules := []types.RuleTier{
		{MinDistKm: 0, MaxDistKm: 10, MaxTotalOneWayKm: 15},
	}
	rule := selectRule(rules, 10.0005)
	assert.Equal(t, 15.0, rule.MaxTotalOneWayKm)
}

func TestSelectRuleFallsBackToLastWhenExceedsHighest(t *testing.T) {
	rules := []types.RuleTier{
		{MinDistKm: 0, MaxDistKm: 10, MaxTotalOneWayKm: 15},
		{MinDistKm: 10, MaxDistKm: 20, MaxTotalOneWayKm: 25},
	}
	rule := selectRule(rules, 100)
	assert.Equal(t, 25.0, rule.MaxTotalOneWayKm)
}

func TestSelectRuleNearestByGapWhenNoTierMatches(t *testing.T) {
	rules := []types.RuleTier{
		{MinDistKm: 0, MaxDistKm: 5, MaxTotalOneWayKm: 10},
		{MinDistKm: 8, MaxDistKm: 12, MaxTotalOneWayKm: 20},
	}
	// 6 falls in the gap between the two tiers, closer to the first tier's edge (gap 1) than the second's (gap 2)
	rule := selectRule(rules, 6)
	assert.Equal(t, 10.0, rule.MaxTotalOneWayKm)
}

func TestCheckRejectsRouteExceedingRule(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":5000,"duration":600,"geometry":"","legs":[{"distance":5000,"duration":600}]}],"waypoints":[]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	c := New(road)

	profile := types.Profile{
		FacilityType: types.FacilityCDC,
		RouteDeviationRules: map[types.FacilityType][]types.RuleTier{
			types.FacilityCDC: {{MinDistKm: 0, MaxDistKm: 10, MaxTotalOneWayKm: 3}},
		},
	}
	employees := []types.Employee{{EmpCode: "E1", Lat: 1, Lng: 1}}

	// route total distance of 20km exceeds the 3km rule
	ok, err := c.Check(context.Background(), employees, types.Facility{}, profile, 20000)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPreGateTrimsUntilPass(t *testing.T) {
	road := roadclient.New(roadclient.Config{BaseURL: "http://unused"})
	c := New(road)

	profile := types.Profile{FacilityType: types.FacilityCDC} // no rules => always passes
	batch := []types.Employee{{EmpCode: "E1"}, {EmpCode: "E2"}, {EmpCode: "E3"}}

	calls := 0
	computeRoute := func(ctx context.Context, b []types.Employee) (float64, error) {
		calls++
		return 1000, nil
	}

	kept, dropped, err := c.PreGate(context.Background(), batch, types.Facility{}, profile, computeRoute)
	require.NoError(t, err)
	assert.Equal(t, 3, len(kept))
	assert.Empty(t, dropped)
	assert.Equal(t, 1, calls)
}

func TestPreGateEmptiesBatchWhenNeverPasses(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"Ok","routes":[{"distance":5000,"duration":600,"geometry":"","legs":[{"distance":5000,"duration":600}]}],"waypoints":[]}`))
	}))
	defer server.Close()

	road := roadclient.New(roadclient.Config{BaseURL: server.URL})
	c := New(road)

	profile := types.Profile{
		FacilityType: types.FacilityCDC,
		RouteDeviationRules: map[types.FacilityType][]types.RuleTier{
			types.FacilityCDC: {{MinDistKm: 0, MaxDistKm: 1000, MaxTotalOneWayKm: 0}},
		},
	}
	batch := []types.Employee{{EmpCode: "E1"}, {EmpCode: "E2"}}

	computeRoute := func(ctx context.Context, b []types.Employee) (float64, error) {
		return 1000, nil // always exceeds the zero-km rule
	}

	kept, dropped, err := c.PreGate(context.Background(), batch, types.Facility{}, profile, computeRoute)
	require.NoError(t, err)
	assert.Nil(t, kept)
	assert.Len(t, dropped, 2)
}
