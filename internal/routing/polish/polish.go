// Package polish re-optimizes a committed batch's internal stop order
// with a single-vehicle solver call, optionally pinning the first or
// last stop (used after a guard swap forces a specific employee into the
// critical seat). It is grounded on the teacher's route_optimizer.go
// single-vehicle re-solve path, adapted to validate-or-revert semantics.
package polish

import (
	"context"

	"github.com/shuttlecrew/routeplanner/internal/routing/matrixbuilder"
	"github.com/shuttlecrew/routeplanner/internal/routing/solverclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// Pin describes an optional fixed endpoint for the re-solve.
type Pin struct {
	// EmpCode is the employee that must occupy the pinned seat. Empty
	// means no pin.
	EmpCode string
	// AtStart pins the employee to the route's first stop (PICKUP with a
	// post-swap seat); AtEnd pins to the last stop (DROPOFF equivalent).
	AtStart bool
	AtEnd   bool
}

// Polisher re-solves single-vehicle stop order.
type Polisher struct {
	solver *solverclient.Client
}

// New creates a RoutePolisher.
func New(solver *solverclient.Client) *Polisher {
	return &Polisher{solver: solver}
}

// Result is the polished employee order, or the original order if
// polishing failed validation and was reverted.
type Result struct {
	Employees []types.Employee
	Changed   bool
}

// Polish re-solves the ordering of a >1-employee batch with num_vehicles=1,
// pinning a start or end node if requested. It validates that no node was
// dropped and that the pinned employee, if any, remains at its pinned
// seat; on failure it reverts to the original order (spec.md §4.7).
func (p *Polisher) Polish(ctx context.Context, pm matrixbuilder.PointMap, distances, durations [][]float64, profile types.Profile, tripType types.TripType, maxDuration float64, pin Pin) (*Result, error) {
	original := pm.Employees
	if len(original) <= 1 {
		return &Result{Employees: original, Changed: false}, nil
	}

	problem := solverclient.Problem{
		DistanceMatrix:         distances,
		DurationMatrix:         durations,
		NumVehicles:            1,
		VehicleCapacities:      []int{len(original)},
		Demands:                demandsFor(pm.Len()),
		DepotIndex:             0,
		MaxRouteDuration:       maxDuration,
		AllowDroppingVisits:    false,
		FacilityCoords:         [2]float64{pm.Facility.Lng, pm.Facility.Lat},
		TripType:               string(tripType),
	}

	pinnedIndex := -1
	if pin.EmpCode != "" {
		for i, e := range original {
			if e.EmpCode == pin.EmpCode {
				pinnedIndex = i + 1 // matrix index (facility is 0)
				break
			}
		}
	}
	if pinnedIndex >= 0 && pin.AtStart {
		idx := pinnedIndex
		problem.FixedStartNodeIndexInMatrix = &idx
	}
	if pinnedIndex >= 0 && pin.AtEnd {
		idx := pinnedIndex
		problem.FixedEndNodeIndexInMatrix = &idx
		problem.OtherCustomerNodeIndices = otherIndices(pm.Len(), idx)
	}

	solution, err := p.solver.Solve(ctx, problem)
	if err != nil {
		return &Result{Employees: original, Changed: false}, nil
	}

	if len(solution.DroppedNodeIndices) > 0 || len(solution.Routes) != 1 {
		return &Result{Employees: original, Changed: false}, nil
	}

	order := stripDepotVisits(solution.Routes[0].NodeIndices)
	if len(order) != len(original) {
		return &Result{Employees: original, Changed: false}, nil
	}

	reordered := make([]types.Employee, len(order))
	for i, matrixIdx := range order {
		reordered[i] = pm.EmployeeAt(matrixIdx)
	}

	if pinnedIndex >= 0 {
		if pin.AtStart && reordered[0].EmpCode != pin.EmpCode {
			return &Result{Employees: original, Changed: false}, nil
		}
		if pin.AtEnd && reordered[len(reordered)-1].EmpCode != pin.EmpCode {
			return &Result{Employees: original, Changed: false}, nil
		}
	}

	return &Result{Employees: reordered, Changed: true}, nil
}

func demandsFor(n int) []int {
	demands := make([]int, n)
	for i := 1; i < n; i++ {
		demands[i] = 1
	}
	return demands
}

func otherIndices(n int, exclude int) []int {
	out := make([]int, 0, n-2)
	for i := 1; i < n; i++ {
		if i != exclude {
			out = append(out, i)
		}
	}
	return out
}

// stripDepotVisits removes leading/trailing depot (index 0) visits from a
// solved route's node sequence, leaving only employee stops.
func stripDepotVisits(nodes []int) []int {
	out := make([]int, 0, len(nodes))
	for _, n := range nodes {
		if n != 0 {
			out = append(out, n)
		}
	}
	return out
}
