// Package orchestrator runs the two-phase planning loop described in
// spec.md §4.9: Select → PreGate → Solve → PostGate → Guard → Polish →
// Commit, against a profiled fleet first and a synthetic fallback
// vehicle second. It is the one place in the engine that owns the
// mutable routedSet/attemptLedger/fleetLedger state for a request,
// grounded on the teacher's dispatch loop in route_optimizer.go
// (iterate-pool, attempt-then-increment, commit-or-retry).
package orchestrator

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/shuttlecrew/routeplanner/internal/routing/deviation"
	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/guard"
	"github.com/shuttlecrew/routeplanner/internal/routing/heuristic"
	"github.com/shuttlecrew/routeplanner/internal/routing/matrixbuilder"
	"github.com/shuttlecrew/routeplanner/internal/routing/polish"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/solverclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/timing"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

const (
	// AttemptCapPrimary is the Phase-1 per-employee failed-attempt cap.
	AttemptCapPrimary = 5
	// AttemptCapFallbackBonus is added to AttemptCapPrimary for Phase 2.
	AttemptCapFallbackBonus = 2
	// DefaultFallbackVehicleType names the synthetic Phase-2 vehicle.
	DefaultFallbackVehicleType = "default"
	// DefaultFallbackCapacity is the synthetic Phase-2 vehicle's seat count.
	DefaultFallbackCapacity = 5
)

// EventSink receives progress notifications as the orchestrator commits
// routes. internal/common/realtime.WebSocketHub.Publish satisfies this
// interface directly.
type EventSink interface {
	Publish(requestID, eventType string, data interface{})
}

// noopSink discards events; used when the caller supplies none.
type noopSink struct{}

func (noopSink) Publish(string, string, interface{}) {}

// Orchestrator wires every collaborator component into the planning
// pipeline.
type Orchestrator struct {
	road      *roadclient.Client
	solver    *solverclient.Client
	matrices  *matrixbuilder.Builder
	selector  *heuristic.Selector
	deviation *deviation.Checker
	guard     *guard.Swapper
	polisher  *polish.Polisher
	timingCalc *timing.Calculator
	sink      EventSink
}

// New creates an Orchestrator from its collaborator clients. sink may be
// nil, in which case events are discarded.
func New(road *roadclient.Client, solver *solverclient.Client, guardPredicate guard.NightShiftPredicate, sink EventSink) *Orchestrator {
	if sink == nil {
		sink = noopSink{}
	}
	return &Orchestrator{
		road:       road,
		solver:     solver,
		matrices:   matrixbuilder.New(road),
		selector:   heuristic.New(road),
		deviation:  deviation.New(road),
		guard:      guard.New(road, guardPredicate),
		polisher:   polish.New(solver),
		timingCalc: timing.New(),
		sink:       sink,
	}
}

// Plan runs the full two-phase pipeline for one request.
func (o *Orchestrator) Plan(ctx context.Context, input types.PlanningInput) (*types.PlanningOutput, error) {
	if !o.road.IsAvailable(ctx) {
		return nil, &roadclient.Error{Kind: roadclient.KindUnavailable, Message: "road service unavailable at probe"}
	}

	unrouted := append([]types.Employee{}, input.Employees...)
	attempts := types.NewAttemptLedger()
	fleet := types.NewFleetLedger(input.Profile.Fleet)

	var committed []types.Route
	routeNumber := 0

	maxDurationSeconds := input.Profile.MaxDuration.Seconds()
	reportingSeconds := input.ReportingTime.Seconds()
	serviceSeconds := input.PickupTimePerEmployee.Seconds()

	// Phase 1 — profiled fleet.
	for len(unrouted) > 0 && !fleet.Exhausted() {
		capacity, ok := fleet.LargestAvailableCapacity()
		if !ok {
			break
		}

		route, newUnrouted, progressed, err := o.attemptBatch(ctx, input, unrouted, attempts, AttemptCapPrimary, capacity, maxDurationSeconds, reportingSeconds, serviceSeconds, fleet, false)
		if err != nil {
			return nil, err
		}
		unrouted = newUnrouted
		if !progressed {
			break // no viable candidate remains at this capacity: nothing more Phase 1 can do
		}
		if route == nil {
			continue // this iteration only consumed attempts; retry with the (now smaller) pool
		}

		routeNumber++
		route.RouteNumber = routeNumber
		route.UniqueKey = uuid.NewString()
		committed = append(committed, *route)
		o.sink.Publish(input.RequestID, "route_committed", route)
	}

	// Phase 2 — default fallback vehicle, synthetic capacity 5.
	for len(unrouted) > 0 {
		route, newUnrouted, progressed, err := o.attemptBatch(ctx, input, unrouted, attempts, AttemptCapPrimary+AttemptCapFallbackBonus, DefaultFallbackCapacity, maxDurationSeconds, reportingSeconds, serviceSeconds, nil, true)
		if err != nil {
			return nil, err
		}
		unrouted = newUnrouted
		if !progressed {
			break
		}
		if route == nil {
			continue
		}

		routeNumber++
		route.RouteNumber = routeNumber
		route.UniqueKey = uuid.NewString()
		committed = append(committed, *route)
		o.sink.Publish(input.RequestID, "route_committed", route)
	}

	return o.buildOutput(input, committed, unrouted), nil
}

// attemptBatch runs one Select→PreGate→Solve→PostGate→Guard→Polish→Commit
// cycle and returns the committed route (nil if nothing could be
// committed from the current pool at this capacity), the updated
// unrouted pool, and whether the iteration made progress: true when a
// route was committed or at least one attempt was consumed, false when
// no batch could be selected or placed at this capacity.
func (o *Orchestrator) attemptBatch(
	ctx context.Context,
	input types.PlanningInput,
	unrouted []types.Employee,
	attempts *types.AttemptLedger,
	attemptCap int,
	capacity int,
	maxDurationSeconds float64,
	reportingSeconds float64,
	serviceSeconds float64,
	fleet *types.FleetLedger,
	afterFleetExhaustion bool,
) (*types.Route, []types.Employee, bool, error) {
	viable := filterViable(unrouted, attempts, attemptCap)
	if len(viable) == 0 {
		return nil, unrouted, false, nil
	}

	batch, err := o.selector.Select(ctx, viable, capacity, input.TripType, maxDurationSeconds, input.Facility)
	if err != nil {
		return nil, unrouted, false, err
	}
	if batch == nil {
		return nil, unrouted, false, nil
	}

	computeRoute := func(ctx context.Context, b []types.Employee) (float64, error) {
		result, err := o.road.Route(ctx, routeCoords(b, input.Facility, input.TripType), false)
		if err != nil {
			return 0, err
		}
		return result.TotalDistance, nil
	}

	// rejectBatch consumes one attempt for each given employee without aborting the request.
	rejectBatch := func(es []types.Employee) (*types.Route, []types.Employee, bool, error) {
		for _, e := range es {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}

	trimmed, dropped, err := o.deviation.PreGate(ctx, batch, input.Facility, input.Profile, computeRoute)
	if err != nil {
		return rejectBatch(batch)
	}
	for _, e := range dropped {
		attempts.Increment(e.EmpCode)
	}
	if len(trimmed) == 0 {
		return nil, unrouted, true, nil // iteration consumed attempts; caller loop retries
	}
	batch = trimmed

	vehicleType := DefaultFallbackVehicleType
	vehicleCapacity := DefaultFallbackCapacity
	if fleet != nil {
		entry, ok := fleet.SmallestFitting(len(batch))
		if !ok {
			return nil, unrouted, false, nil
		}
		vehicleType = entry.Type
		vehicleCapacity = entry.Capacity
	}
	if len(batch) > vehicleCapacity {
		for _, e := range batch[vehicleCapacity:] {
			attempts.Increment(e.EmpCode)
		}
		batch = batch[:vehicleCapacity]
	}

	mb, err := o.matrices.Build(ctx, input.Facility, batch)
	if err != nil {
		for _, e := range batch {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}

	problem := buildProblem(mb, input, maxDurationSeconds, serviceSeconds, nil, nil)
	solution, err := o.solver.Solve(ctx, problem)
	if err != nil {
		for _, e := range batch {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}
	ordered, ok := solvedOrder(solution, mb.PointMap)
	if !ok {
		for _, e := range batch {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}

	routeResult, err := o.road.Route(ctx, routeCoords(ordered, input.Facility, input.TripType), true)
	if err != nil {
		for _, e := range batch {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}

	devOK, err := o.deviation.Check(ctx, ordered, input.Facility, input.Profile, routeResult.TotalDistance)
	if err != nil {
		return rejectBatch(batch)
	}
	durationExceeded := routeResult.TotalDuration > maxDurationSeconds
	if !devOK || durationExceeded {
		for _, e := range batch {
			attempts.Increment(e.EmpCode)
		}
		return nil, unrouted, true, nil
	}

	finalEmployees := ordered
	finalRoute := routeResult
	guardNeeded := false
	swapped := false

	if input.Guard {
		outcome, gerr := o.guard.Evaluate(ctx, finalEmployees, input.Facility, input.TripType, true, input.ShiftTime, input.Profile.NightShiftGuardTimings, func(e []types.Employee) []geo.Point {
			return routeCoords(e, input.Facility, input.TripType)
		})
		if gerr != nil {
			return rejectBatch(finalEmployees)
		}

		if outcome.GuardNeeded {
			if vehicleCapacity <= 1 {
				for _, e := range finalEmployees {
					attempts.Increment(e.EmpCode)
				}
				return nil, unrouted, true, nil // GuardInfeasible: base capacity 1 cannot drop a seat
			}

			droppedEmp := finalEmployees[len(finalEmployees)-1]
			reduced := finalEmployees[:len(finalEmployees)-1]
			attempts.Increment(droppedEmp.EmpCode)

			if len(reduced) == 0 {
				return nil, unrouted, true, nil
			}

			reRoute, rerr := o.road.Route(ctx, routeCoords(reduced, input.Facility, input.TripType), true)
			if rerr != nil {
				for _, e := range reduced {
					attempts.Increment(e.EmpCode)
				}
				return nil, unrouted, true, nil
			}
			reDevOK, rderr := o.deviation.Check(ctx, reduced, input.Facility, input.Profile, reRoute.TotalDistance)
			if rderr != nil {
				return rejectBatch(reduced)
			}
			if !reDevOK || reRoute.TotalDuration > maxDurationSeconds {
				for _, e := range reduced {
					attempts.Increment(e.EmpCode)
				}
				return nil, unrouted, true, nil
			}

			finalEmployees = reduced
			finalRoute = reRoute
			guardNeeded = true
		} else {
			finalEmployees = outcome.Employees
			swapped = outcome.Swapped
			if outcome.Route != nil {
				finalRoute = outcome.Route
			}
		}
	}

	if len(finalEmployees) > 1 {
		if polished, ok := o.tryPolish(ctx, input, finalEmployees, maxDurationSeconds, swapped); ok {
			finalEmployees = polished.employees
			finalRoute = polished.route
		}
	}

	route := o.commitRoute(input, finalEmployees, finalRoute, vehicleType, vehicleCapacity, guardNeeded, swapped, durationExceeded, afterFleetExhaustion, reportingSeconds, serviceSeconds)

	if fleet != nil {
		fleet.Decrement(vehicleType)
	}

	return route, removeByEmpCode(unrouted, finalEmployees), true, nil
}

type polishedRoute struct {
	employees []types.Employee
	route     *roadclient.RouteResult
}

// tryPolish re-solves stop order for the committed batch, pinning the
// critical seat when a guard swap forced a specific employee into it.
// On success it recomputes the road route and re-checks deviation and
// duration; on any failure the original order stands.
func (o *Orchestrator) tryPolish(ctx context.Context, input types.PlanningInput, employees []types.Employee, maxDurationSeconds float64, swapped bool) (*polishedRoute, bool) {
	mb, err := o.matrices.Build(ctx, input.Facility, employees)
	if err != nil {
		return nil, false
	}

	pin := polish.Pin{}
	if swapped {
		if input.TripType == types.Pickup {
			pin = polish.Pin{EmpCode: employees[0].EmpCode, AtStart: true}
		} else {
			pin = polish.Pin{EmpCode: employees[len(employees)-1].EmpCode, AtEnd: true}
		}
	}

	result, err := o.polisher.Polish(ctx, mb.PointMap, mb.Distances, mb.Durations, input.Profile, input.TripType, maxDurationSeconds, pin)
	if err != nil || !result.Changed {
		return nil, false
	}

	newRoute, err := o.road.Route(ctx, routeCoords(result.Employees, input.Facility, input.TripType), true)
	if err != nil {
		return nil, false
	}
	devOK, err := o.deviation.Check(ctx, result.Employees, input.Facility, input.Profile, newRoute.TotalDistance)
	if err != nil || !devOK || newRoute.TotalDuration > maxDurationSeconds {
		return nil, false
	}

	return &polishedRoute{employees: result.Employees, route: newRoute}, true
}

// commitRoute assembles the final types.Route from the pipeline's last
// accepted state, computing per-employee ETAs via TimingCalculator.
func (o *Orchestrator) commitRoute(input types.PlanningInput, employees []types.Employee, route *roadclient.RouteResult, vehicleType string, vehicleCapacity int, guardNeeded, swapped, durationExceeded, afterFleetExhaustion bool, reportingSeconds, serviceSeconds float64) *types.Route {
	timingResult := o.timingCalc.Compute(route.Legs, input.TripType, input.ShiftTime, input.Date, reportingSeconds, serviceSeconds)

	finalEmployees := make([]types.Employee, len(employees))
	for i, e := range employees {
		e.Order = i
		if timingResult.Failed || i >= len(timingResult.ETAs) {
			eta := timing.ErrorSentinel
			if input.TripType == types.Pickup {
				e.PickupTime = eta
			} else {
				e.DropoffTime = eta
			}
		} else if input.TripType == types.Pickup {
			e.PickupTime = timingResult.ETAs[i]
		} else {
			e.DropoffTime = timingResult.ETAs[i]
		}
		finalEmployees[i] = e
	}

	points := geo.DecodePolyline(route.Geometry)
	geometry := make([][2]float64, len(points))
	for i, p := range points {
		geometry[i] = [2]float64{p.Lat, p.Lng}
	}

	farthest := farthestEmployeeDistance(employees, input.Facility)
	var isSpecialNeeds, isMedicalRoute, isPWDRoute, isNMTRoute, isOOBRoute bool
	for _, e := range employees {
		if e.IsSpecialNeeds() {
			isSpecialNeeds = true
		}
		if e.IsMedical {
			isMedicalRoute = true
		}
		if e.IsPWD {
			isPWDRoute = true
		}
		if e.IsNMT {
			isNMTRoute = true
		}
		if e.IsOOB {
			isOOBRoute = true
		}
	}
	zone := ""
	if len(employees) > 0 {
		zone = employees[0].Zone
	}

	return &types.Route{
		Zone:            zone,
		Employees:       finalEmployees,
		VehicleType:     vehicleType,
		VehicleCapacity: vehicleCapacity,
		TripType:        input.TripType,
		RouteDetails: types.RouteDetails{
			TotalDistance:   route.TotalDistance,
			TotalDuration:   route.TotalDuration,
			Legs:            legsFrom(route.Legs),
			EncodedPolyline: route.Geometry,
			Geometry:        geometry,
		},
		Swapped:                  swapped,
		GuardNeeded:              guardNeeded,
		DurationExceeded:         durationExceeded,
		IsSpecialNeedsRoute:      isSpecialNeeds,
		IsMedicalRoute:           isMedicalRoute,
		IsPWDRoute:               isPWDRoute,
		IsNMTRoute:               isNMTRoute,
		IsOOBRoute:               isOOBRoute,
		AfterFleetExhaustion:     afterFleetExhaustion,
		FarthestEmployeeDistance: farthest,
	}
}

func legsFrom(legs []roadclient.LegResult) []types.Leg {
	out := make([]types.Leg, len(legs))
	for i, l := range legs {
		out[i] = types.Leg{Distance: l.Distance, Duration: l.Duration}
	}
	return out
}

func farthestEmployeeDistance(employees []types.Employee, facility types.Facility) float64 {
	fp := geo.Point{Lat: facility.Lat, Lng: facility.Lng}
	max := 0.0
	for _, e := range employees {
		d := geo.HaversineMeters(fp, geo.Point{Lat: e.Lat, Lng: e.Lng})
		if d > max {
			max = d
		}
	}
	return max
}

// formatLocation renders a lat/lng pair as the "location" string for an
// unrouted employee — the engine has no reverse-geocoding collaborator,
// so the coordinate pair is the only location description available.
func formatLocation(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', 6, 64) + "," + strconv.FormatFloat(lng, 'f', 6, 64)
}

// buildOutput assembles the final PlanningOutput from committed routes
// and whatever remains unrouted.
func (o *Orchestrator) buildOutput(input types.PlanningInput, committed []types.Route, unrouted []types.Employee) *types.PlanningOutput {
	totalRouted := 0
	totalDistanceKm := 0.0
	totalDurationS := 0.0
	swappedCount := 0
	guardedCount := 0

	for _, r := range committed {
		totalRouted += len(r.Employees)
		totalDistanceKm += r.RouteDetails.TotalDistance / 1000.0
		totalDurationS += r.RouteDetails.TotalDuration
		if r.Swapped {
			swappedCount++
		}
		if r.GuardNeeded {
			guardedCount++
		}
	}

	avgOccupancy := 0.0
	if len(committed) > 0 {
		avgOccupancy = float64(totalRouted) / float64(len(committed))
	}

	unroutedOut := make([]types.UnroutedEmployee, len(unrouted))
	for i, e := range unrouted {
		unroutedOut[i] = types.UnroutedEmployee{
			EmpCode:   e.EmpCode,
			Lat:       e.Lat,
			Lng:       e.Lng,
			Gender:    e.Gender,
			IsMedical: e.IsMedical,
			IsPWD:     e.IsPWD,
			Location:  formatLocation(e.Lat, e.Lng),
		}
	}

	return &types.PlanningOutput{
		RequestID:            input.RequestID,
		Date:                 input.Date,
		ShiftTime:            input.ShiftTime,
		TripType:             input.TripType,
		TotalEmployees:       len(input.Employees),
		TotalRoutedEmployees: totalRouted,
		TotalRoutes:          len(committed),
		AverageOccupancy:     avgOccupancy,
		OverallRouteDetails: types.OverallRouteDetails{
			TotalDistanceKm: totalDistanceKm,
			TotalDurationS:  totalDurationS,
		},
		TotalSwappedRoutes: swappedCount,
		TotalGuardedRoutes: guardedCount,
		Routes:             committed,
		UnroutedEmployees:  unroutedOut,
	}
}

// filterViable excludes employees who have exhausted their attempt cap.
func filterViable(pool []types.Employee, attempts *types.AttemptLedger, cap int) []types.Employee {
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		if !attempts.Exhausted(e.EmpCode, cap) {
			out = append(out, e)
		}
	}
	return out
}

// removeByEmpCode returns pool with every employee in committed removed.
func removeByEmpCode(pool []types.Employee, committed []types.Employee) []types.Employee {
	committedCodes := make(map[string]bool, len(committed))
	for _, e := range committed {
		committedCodes[e.EmpCode] = true
	}
	out := make([]types.Employee, 0, len(pool))
	for _, e := range pool {
		if !committedCodes[e.EmpCode] {
			out = append(out, e)
		}
	}
	return out
}

// routeCoords builds the coordinate sequence for a road-route call in
// travel order: employees then facility for PICKUP, facility then
// employees for DROPOFF.
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

// buildProblem assembles the solver payload for one batch. fixedStart/
// fixedEnd are matrix indices (1-based, facility is 0) for a pinned seat,
// or nil.
func buildProblem(mb *matrixbuilder.Result, input types.PlanningInput, maxDurationSeconds, serviceSeconds float64, fixedStart, fixedEnd *int) solverclient.Problem {
	n := mb.PointMap.Len()
	demands := make([]int, n)
	serviceTimes := make([]float64, n)
	for i := 1; i < n; i++ {
		demands[i] = 1
		serviceTimes[i] = serviceSeconds
	}

	return solverclient.Problem{
		DistanceMatrix:         mb.Distances,
		DurationMatrix:         mb.Durations,
		NumVehicles:            1,
		VehicleCapacities:      []int{n - 1},
		Demands:                demands,
		DepotIndex:             0,
		MaxRouteDuration:       maxDurationSeconds,
		ServiceTimes:           serviceTimes,
		AllowDroppingVisits:    input.Profile.AllowDroppingVisitsForProblematicZones,
		DropVisitPenalty:       input.Profile.DropPenalty,
		FacilityCoords:         [2]float64{input.Facility.Lng, input.Facility.Lat},
		TripType:               string(input.TripType),
		DirectionPenaltyWeight: input.Profile.DirectionPenaltyWeight,
		FixedStartNodeIndexInMatrix: fixedStart,
		FixedEndNodeIndexInMatrix:   fixedEnd,
	}
}

// solvedOrder maps a solver solution's node indices back to employees,
// verifying every matrix index (other than the depot) was visited
// exactly once.
func solvedOrder(solution *solverclient.Solution, pm matrixbuilder.PointMap) ([]types.Employee, bool) {
	if len(solution.DroppedNodeIndices) > 0 || len(solution.Routes) != 1 {
		return nil, false
	}

	var order []int
	for _, n := range solution.Routes[0].NodeIndices {
		if n != 0 {
			order = append(order, n)
		}
	}
	if len(order) != pm.Len()-1 {
		return nil, false
	}

	seen := make(map[int]bool, len(order))
	employees := make([]types.Employee, len(order))
	for i, idx := range order {
		if idx < 1 || idx >= pm.Len() || seen[idx] {
			return nil, false
		}
		seen[idx] = true
		employees[i] = pm.EmployeeAt(idx)
	}
	return employees, true
}
