// Package deviation checks a candidate route's total road distance
// against the profile's tiered deviation rules, keyed by how far the
// route's farthest employee sits from the facility. It is grounded on
// the teacher's geofence_manager.go rule-matching idiom (ordered tiers,
// epsilon-tolerant boundary comparison) generalized to per-facility-type
// rule sets.
package deviation

import (
	"context"

	"github.com/shuttlecrew/routeplanner/internal/routing/concurrency"
	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// epsilon is the boundary-matching tolerance for rule tier comparisons
// (spec.md §4.5).
const epsilon = 0.001

// Checker validates a route's deviation against profile rules.
type Checker struct {
	road *roadclient.Client
}

// New creates a DeviationChecker.
func New(road *roadclient.Client) *Checker {
	return &Checker{road: road}
}

// Check returns true if the route satisfies the applicable deviation
// rule (or there are no rules at all, in which case it is lenient by
// default). routeTotalDistanceMeters is the already-computed full route
// distance.
func (c *Checker) Check(ctx context.Context, employees []types.Employee, facility types.Facility, profile types.Profile, routeTotalDistanceMeters float64) (bool, error) {
	rules := profile.RulesFor(profile.FacilityType)
	if len(rules) == 0 {
		return true, nil
	}

	maxDistKm, err := c.maxFacilityToEmployeeKm(ctx, employees, facility)
	if err != nil {
		return false, err
	}

	rule := selectRule(rules, maxDistKm)
	return routeTotalDistanceMeters/1000.0 <= rule.MaxTotalOneWayKm, nil
}

// maxFacilityToEmployeeKm computes the largest facility→employee road
// distance across the batch. Each employee's probe is fully independent of
// the others, so they run as a bounded fan-out (spec.md §5) with the max
// reduced deterministically over results in input-index order, regardless
// of which probe actually finished first.
func (c *Checker) maxFacilityToEmployeeKm(ctx context.Context, employees []types.Employee, facility types.Facility) (float64, error) {
	fp := geo.Point{Lat: facility.Lat, Lng: facility.Lng}

	results := concurrency.RunIndexed(ctx, len(employees), concurrency.DefaultMaxInFlight, func(ctx context.Context, i int) (interface{}, error) {
		ep := geo.Point{Lat: employees[i].Lat, Lng: employees[i].Lng}
		result, err := c.road.Route(ctx, []geo.Point{fp, ep}, false)
		if err != nil {
			return 0.0, err
		}
		return result.TotalDistance / 1000.0, nil
	})

	max := 0.0
	for _, r := range results {
		if r.Err != nil {
			return 0, r.Err
		}
		km := r.Value.(float64)
		if km > max {
			max = km
		}
	}
	return max, nil
}

// selectRule finds the tier whose [minDistKm, maxDistKm] contains value
// within epsilon. If value exceeds every tier's maxDistKm, the last rule
// applies; otherwise the nearest rule by gap distance is used
// (spec.md §4.5, §9 open question — retained for compatibility).
func selectRule(rules []types.RuleTier, value float64) types.RuleTier {
	for _, r := range rules {
		if value >= r.MinDistKm-epsilon && value <= r.MaxDistKm+epsilon {
			return r
		}
	}

	highest := rules[0]
	for _, r := range rules {
		if r.MaxDistKm > highest.MaxDistKm {
			highest = r
		}
	}
	if value > highest.MaxDistKm {
		return highest
	}

	nearest := rules[0]
	nearestGap := gapTo(nearest, value)
	for _, r := range rules[1:] {
		gap := gapTo(r, value)
		if gap < nearestGap {
			nearest = r
			nearestGap = gap
		}
	}
	return nearest
}

func gapTo(r types.RuleTier, value float64) float64 {
	if value < r.MinDistKm {
		return r.MinDistKm - value
	}
	if value > r.MaxDistKm {
		return value - r.MaxDistKm
	}
	return 0
}

// PreGate iteratively trims the tail of the batch until the route passes
// deviation or the batch empties, per spec.md §4.9 step 3. computeRoute
// recomputes the road route/total distance for a given sub-batch (the
// caller owns the RoadClient call shape since PICKUP/DROPOFF order
// differs).
func (c *Checker) PreGate(ctx context.Context, batch []types.Employee, facility types.Facility, profile types.Profile, computeRoute func(ctx context.Context, batch []types.Employee) (float64, error)) ([]types.Employee, []types.Employee, error) {
	trimmed := append([]types.Employee{}, batch...)
	var dropped []types.Employee

	for len(trimmed) > 0 {
		totalDistance, err := computeRoute(ctx, trimmed)
		if err != nil {
			return nil, dropped, err
		}

		ok, err := c.Check(ctx, trimmed, facility, profile, totalDistance)
		if err != nil {
			return nil, dropped, err
		}
		if ok {
			return trimmed, dropped, nil
		}

		dropped = append(dropped, trimmed[len(trimmed)-1])
		trimmed = trimmed[:len(trimmed)-1]
	}

	return nil, dropped, nil
}
