// Package guard implements the "female safety" critical-seat rule: a
// lone female must never occupy a route's critical seat unprotected.
// It is grounded on the teacher's driver-assignment swap logic in
// route_optimizer.go (closest-candidate-within-radius selection via a
// distance matrix), repurposed here from vehicle-driver pairing to
// employee-seat swapping.
package guard

import (
	"context"
	"sort"

	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// MaxSwapDistanceKm bounds how far a candidate male may be from the
// critical-seat female for a swap to be considered (spec.md §4.6).
const MaxSwapDistanceKm = 1.5

// NightShiftPredicate decides whether the night-shift guard window
// applies to a given shift time and direction. The source's equivalent
// check exists but is bypassed at every call site; this is exposed as a
// configurable predicate per spec.md §9's open question instead of being
// hardwired to always-on or always-off. AlwaysActive treats guard=true
// alone as sufficient, matching the source's effective (bypassed)
// behavior.
type NightShiftPredicate func(shiftTime string, tripType types.TripType, timings map[string]types.GuardTiming) bool

// AlwaysActive is the default predicate: it never suppresses the guard
// check based on shift timing.
func AlwaysActive(shiftTime string, tripType types.TripType, timings map[string]types.GuardTiming) bool {
	return true
}

// Outcome is the result of running the guard/swap check on a batch.
type Outcome struct {
	GuardNeeded bool
	Swapped     bool
	Employees   []types.Employee // possibly reordered/modified batch
	Route       *roadclient.RouteResult
}

// Swapper runs the guard/swap rule.
type Swapper struct {
	road      *roadclient.Client
	predicate NightShiftPredicate
}

// New creates a GuardSwapper. A nil predicate defaults to AlwaysActive.
func New(road *roadclient.Client, predicate NightShiftPredicate) *Swapper {
	if predicate == nil {
		predicate = AlwaysActive
	}
	return &Swapper{road: road, predicate: predicate}
}

// criticalSeatIndex returns the index of the critical seat for the given
// trip type: index 0 for PICKUP, last index for DROPOFF.
func criticalSeatIndex(employees []types.Employee, tripType types.TripType) int {
	if tripType == types.Pickup {
		return 0
	}
	return len(employees) - 1
}

// Evaluate runs the guard rule against a committed batch. guardEnabled is
// the request-level `guard` flag; shiftTime/timings feed the night-shift
// predicate. routeCoords builds the coordinate sequence for a full road
// route given an employee ordering (the caller owns PICKUP/DROPOFF
// coordinate shape).
func (s *Swapper) Evaluate(
	ctx context.Context,
	employees []types.Employee,
	facility types.Facility,
	tripType types.TripType,
	guardEnabled bool,
	shiftTime string,
	nightShiftTimings map[string]types.GuardTiming,
	routeCoords func([]types.Employee) []geo.Point,
) (*Outcome, error) {
	if !guardEnabled || len(employees) == 0 {
		return &Outcome{Employees: employees}, nil
	}
	if !s.predicate(shiftTime, tripType, nightShiftTimings) {
		return &Outcome{Employees: employees}, nil
	}

	seatIdx := criticalSeatIndex(employees, tripType)
	critical := employees[seatIdx]

	if critical.Gender != types.Female {
		return &Outcome{Employees: employees}, nil
	}

	if len(employees) == 1 {
		return &Outcome{GuardNeeded: true, Employees: employees}, nil
	}

	maleIdx, err := s.nearestMaleWithinRadius(ctx, critical, employees, seatIdx)
	if err != nil {
		return nil, err
	}
	if maleIdx < 0 {
		return &Outcome{GuardNeeded: true, Swapped: false, Employees: employees}, nil
	}

	swapped := append([]types.Employee{}, employees...)
	swapped[seatIdx], swapped[maleIdx] = swapped[maleIdx], swapped[seatIdx]

	route, err := s.road.Route(ctx, routeCoords(swapped), true)
	if err != nil {
		return &Outcome{GuardNeeded: true, Swapped: false, Employees: employees}, nil
	}

	reordered := applyWaypointOrder(swapped, route.Waypoints, tripType)
	reorderedSeat := criticalSeatIndex(reordered, tripType)
	if reordered[reorderedSeat].Gender == types.Female {
		forced := forceToSeat(reordered, maleEmpCode(swapped, seatIdx), reorderedSeat)
		route2, err2 := s.road.Route(ctx, routeCoords(forced), true)
		if err2 != nil {
			return &Outcome{GuardNeeded: true, Swapped: false, Employees: employees}, nil
		}
		return &Outcome{GuardNeeded: false, Swapped: true, Employees: forced, Route: route2}, nil
	}

	return &Outcome{GuardNeeded: false, Swapped: true, Employees: reordered, Route: route}, nil
}

// nearestMaleWithinRadius requests a /table from the critical employee to
// every other male in the batch and returns the index of the closest one
// within MaxSwapDistanceKm, or -1 if none qualifies.
func (s *Swapper) nearestMaleWithinRadius(ctx context.Context, critical types.Employee, employees []types.Employee, excludeIdx int) (int, error) {
	criticalPoint := geo.Point{Lat: critical.Lat, Lng: critical.Lng}

	var maleIndices []int
	points := []geo.Point{criticalPoint}
	for i, e := range employees {
		if i == excludeIdx || e.Gender != types.Male {
			continue
		}
		maleIndices = append(maleIndices, i)
		points = append(points, geo.Point{Lat: e.Lat, Lng: e.Lng})
	}
	if len(maleIndices) == 0 {
		return -1, nil
	}

	table, err := s.road.Table(ctx, points, []int{0}, nil)
	if err != nil {
		return -1, err
	}
	if len(table.Distances) == 0 {
		return -1, nil
	}

	best := -1
	bestKm := 0.0
	for col, idx := range maleIndices {
		distKm := table.Distances[0][col+1] / 1000.0
		if distKm > MaxSwapDistanceKm {
			continue
		}
		if best < 0 || distKm < bestKm {
			best = idx
			bestKm = distKm
		}
	}
	return best, nil
}

// applyWaypointOrder reorders employees according to the road service's
// chosen waypoint ordering, since the service may not preserve input
// order (spec.md §9). waypoints is indexed over the coordinates actually
// sent to the road service, which include the facility (routeCoords
// prepends it for DROPOFF, appends it for PICKUP) — one more entry than
// employees — so the facility's own waypoint is located and excluded
// before the remaining entries are sorted back into route order.
func applyWaypointOrder(employees []types.Employee, waypoints []roadclient.Waypoint, tripType types.TripType) []types.Employee {
	n := len(employees)
	if len(waypoints) != n+1 {
		return employees
	}
	facilityInputIdx := 0
	if tripType == types.Pickup {
		facilityInputIdx = n
	}

	type entry struct {
		matched int
		emp     types.Employee
	}
	entries := make([]entry, 0, n)
	for _, wp := range waypoints {
		if wp.InputIndex == facilityInputIdx {
			continue
		}
		empIdx := wp.InputIndex
		if tripType == types.Dropoff {
			empIdx-- // facility occupies input index 0, shifting every employee by one
		}
		if empIdx < 0 || empIdx >= n {
			return employees
		}
		entries = append(entries, entry{matched: wp.MatchedIndex, emp: employees[empIdx]})
	}
	if len(entries) != n {
		return employees
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].matched < entries[j].matched })
	out := make([]types.Employee, n)
	for i, e := range entries {
		out[i] = e.emp
	}
	return out
}

func maleEmpCode(employees []types.Employee, idx int) string {
	return employees[idx].EmpCode
}

// forceToSeat moves the employee with the given empCode to seatIdx,
// shifting the displaced occupant elsewhere in the order.
func forceToSeat(employees []types.Employee, empCode string, seatIdx int) []types.Employee {
	out := append([]types.Employee{}, employees...)
	from := -1
	for i, e := range out {
		if e.EmpCode == empCode {
			from = i
			break
		}
	}
	if from < 0 || from == seatIdx {
		return out
	}
	out[from], out[seatIdx] = out[seatIdx], out[from]
	return out
}
