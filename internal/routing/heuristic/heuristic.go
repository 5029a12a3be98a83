// Package heuristic implements the greedy candidate-batch selector: given
// a pool of unrouted employees, it grows a single vehicle's worth of
// stops by repeatedly picking the best-scoring next candidate subject to
// a proximity gate and a live road-route duration check. It is grounded
// on the teacher's route_optimizer.go batch-building loop (nearest-next,
// score-then-verify-then-commit), generalized to the scoring function and
// special-needs segregation rule spec.md §4.4 adds.
package heuristic

import (
	"context"
	"sort"

	"github.com/shuttlecrew/routeplanner/internal/routing/concurrency"
	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

const (
	// MaxNextStopDistanceKm bounds how far a candidate may be from the
	// batch's current tail before it is even considered.
	MaxNextStopDistanceKm = 2.25

	// ProgressWeight and DistanceWeight combine into the candidate score:
	// progress toward/away from the facility versus raw proximity.
	ProgressWeight  = 0.6
	DistanceWeight  = 0.4
)

// Selector grows candidate batches via RoadClient-verified probes.
type Selector struct {
	road *roadclient.Client
}

// New creates a HeuristicSelector.
func New(road *roadclient.Client) *Selector {
	return &Selector{road: road}
}

// Select runs the batch-growing algorithm described in spec.md §4.4 and
// returns the chosen batch, or nil if no viable seed exists.
func (s *Selector) Select(ctx context.Context, pool []types.Employee, vehicleCapacity int, tripType types.TripType, maxDuration float64, facility types.Facility) ([]types.Employee, error) {
	candidates := filterValidLocation(pool)
	if len(candidates) == 0 {
		return nil, nil
	}

	sortByFacilityDistance(candidates, facility, tripType)

	seed := candidates[0]
	seedOK, err := s.verifySingletonRoute(ctx, seed, facility, tripType, maxDuration)
	if err != nil {
		return nil, err
	}
	if !seedOK {
		return nil, nil
	}

	cap := effectiveCapacity(seed, vehicleCapacity)
	batch := []types.Employee{seed}
	remaining := candidates[1:]

	for len(batch) < cap && len(remaining) > 0 {
		remaining = filterSpecialNeedsCompatible(remaining, seed)
		if len(remaining) == 0 {
			break
		}

		tail := batch[len(batch)-1]
		pooled := filterWithinNextStopDistance(remaining, tail)
		if len(pooled) == 0 {
			break
		}

		scored := scoreCandidates(pooled, tail, facility, tripType)
		sortByScoreThenProximity(scored)

		chosen, failed, err := s.verifyCandidatesConcurrently(ctx, batch, scored, facility, tripType, maxDuration)
		if err != nil {
			return nil, err
		}
		for _, e := range failed {
			remaining = removeEmployee(remaining, e.EmpCode)
		}
		if chosen == nil {
			break
		}
		batch = append(batch, *chosen)
		remaining = removeEmployee(remaining, chosen.EmpCode)
	}

	return batch, nil
}

func effectiveCapacity(seed types.Employee, vehicleCapacity int) int {
	if seed.IsSpecialNeeds() {
		return min(vehicleCapacity, 2)
	}
	return vehicleCapacity
}

func filterSpecialNeedsCompatible(pool []types.Employee, seed types.Employee) []types.Employee {
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		if seed.IsSpecialNeeds() {
			if e.IsSpecialNeeds() {
				out = append(out, e)
			}
			continue
		}
		if !e.IsSpecialNeeds() {
			out = append(out, e)
		}
	}
	return out
}

func filterValidLocation(pool []types.Employee) []types.Employee {
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		if e.Lat == 0 && e.Lng == 0 {
			continue
		}
		out = append(out, e)
	}
	return out
}

func sortByFacilityDistance(employees []types.Employee, facility types.Facility, tripType types.TripType) {
	fp := geo.Point{Lat: facility.Lat, Lng: facility.Lng}
	sort.SliceStable(employees, func(i, j int) bool {
		di := geo.HaversineKm(fp, geo.Point{Lat: employees[i].Lat, Lng: employees[i].Lng})
		dj := geo.HaversineKm(fp, geo.Point{Lat: employees[j].Lat, Lng: employees[j].Lng})
		if tripType == types.Pickup {
			return di > dj // farthest first
		}
		return di < dj // closest first
	})
}

func filterWithinNextStopDistance(pool []types.Employee, tail types.Employee) []types.Employee {
	tp := geo.Point{Lat: tail.Lat, Lng: tail.Lng}
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		d := geo.HaversineKm(tp, geo.Point{Lat: e.Lat, Lng: e.Lng})
		if d <= MaxNextStopDistanceKm {
			out = append(out, e)
		}
	}
	return out
}

type scoredCandidate struct {
	employee types.Employee
	score    float64
	proximityKm float64
}

func scoreCandidates(pool []types.Employee, tail types.Employee, facility types.Facility, tripType types.TripType) []scoredCandidate {
	fp := geo.Point{Lat: facility.Lat, Lng: facility.Lng}
	tp := geo.Point{Lat: tail.Lat, Lng: tail.Lng}
	tailToFacility := geo.HaversineKm(tp, fp)

	maxProximity := 0.0
	proximities := make([]float64, len(pool))
	for i, e := range pool {
		proximities[i] = geo.HaversineKm(tp, geo.Point{Lat: e.Lat, Lng: e.Lng})
		if proximities[i] > maxProximity {
			maxProximity = proximities[i]
		}
	}

	out := make([]scoredCandidate, len(pool))
	for i, e := range pool {
		candToFacility := geo.HaversineKm(geo.Point{Lat: e.Lat, Lng: e.Lng}, fp)

		var progress float64
		if tripType == types.Pickup {
			// moving toward the facility is progress
			progress = tailToFacility - candToFacility
		} else {
			// moving away from the facility (deeper into dropoff) is progress
			progress = candToFacility - tailToFacility
		}

		normalizedProximity := 0.0
		if maxProximity > 0 {
			normalizedProximity = 1 - (proximities[i] / maxProximity)
		}

		score := ProgressWeight*progress + DistanceWeight*normalizedProximity
		out[i] = scoredCandidate{employee: e, score: score, proximityKm: proximities[i]}
	}
	return out
}

func sortByScoreThenProximity(scored []scoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].proximityKm < scored[j].proximityKm
	})
}

func removeEmployee(pool []types.Employee, empCode string) []types.Employee {
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		if e.EmpCode != empCode {
			out = append(out, e)
		}
	}
	return out
}

// verifySingletonRoute checks that a direct employee<->facility route
// satisfies maxDuration, in the trip-type's natural direction.
func (s *Selector) verifySingletonRoute(ctx context.Context, e types.Employee, facility types.Facility, tripType types.TripType, maxDuration float64) (bool, error) {
	coords := routeCoords([]types.Employee{e}, facility, tripType)
	result, err := s.road.Route(ctx, coords, false)
	if err != nil {
		if rerr, ok := err.(*roadclient.Error); ok && rerr.Kind == roadclient.KindTransient {
			return false, nil
		}
		return false, err
	}
	return result.TotalDuration <= maxDuration, nil
}

// verifyTentativeRoute checks the full batch-plus-candidate route against
// maxDuration.
func (s *Selector) verifyTentativeRoute(ctx context.Context, batch []types.Employee, candidate types.Employee, facility types.Facility, tripType types.TripType, maxDuration float64) (bool, error) {
	tentative := append(append([]types.Employee{}, batch...), candidate)
	coords := routeCoords(tentative, facility, tripType)
	result, err := s.road.Route(ctx, coords, false)
	if err != nil {
		if rerr, ok := err.(*roadclient.Error); ok && rerr.Kind == roadclient.KindTransient {
			return false, nil
		}
		return false, err
	}
	return result.TotalDuration <= maxDuration, nil
}

// verifyCandidatesConcurrently probes score-ordered candidates' tentative
// routes with bounded fan-out (spec.md §5: per-candidate checks are
// independent and may run concurrently), then walks the results back in
// score order and returns the first one that passed — concurrency only
// overlaps the road-service I/O, it never changes which candidate wins
// when more than one would pass. Every candidate tested before the winner
// (in the same or an earlier window) is returned as failed, matching the
// sequential discard-and-retry semantics of spec.md §4.4 step 5.
func (s *Selector) verifyCandidatesConcurrently(ctx context.Context, batch []types.Employee, scored []scoredCandidate, facility types.Facility, tripType types.TripType, maxDuration float64) (*types.Employee, []types.Employee, error) {
	var failed []types.Employee

	for start := 0; start < len(scored); start += concurrency.DefaultMaxInFlight {
		end := start + concurrency.DefaultMaxInFlight
		if end > len(scored) {
			end = len(scored)
		}
		window := scored[start:end]

		tasks := make([]concurrency.Task, len(window))
		for i, sc := range window {
			sc := sc
			tasks[i] = func(ctx context.Context) (interface{}, error) {
				return s.verifyTentativeRoute(ctx, batch, sc.employee, facility, tripType, maxDuration)
			}
		}
		results := concurrency.Run(ctx, tasks, 0)

		for i, r := range results {
			if r.Err != nil {
				return nil, failed, r.Err
			}
			if ok, _ := r.Value.(bool); ok {
				chosen := window[i].employee
				for _, earlier := range window[:i] {
					failed = append(failed, earlier.employee)
				}
				return &chosen, failed, nil
			}
		}

		for _, sc := range window {
			failed = append(failed, sc.employee)
		}
	}

	return nil, failed, nil
}

// routeCoords builds the coordinate sequence for a road-route call:
// employees then facility for PICKUP, facility then employees for
// DROPOFF.
func routeCoords(employees []types.Employee, facility types.Facility, tripType types.TripType) []geo.Point {
	fp := geo.Point{Lat: facility.Lat, Lng: facility.Lng}
	points := make([]geo.Point, 0, len(employees)+1)
	if tripType == types.Dropoff {
		points = append(points, fp)
	}
	for _, e := range employees {
		points = append(points, geo.Point{Lat: e.Lat, Lng: e.Lng})
	}
	if tripType == types.Pickup {
		points = append(points, fp)
	}
	return points
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
