// Package matrixbuilder assembles the facility+employees point list for a
// solver call and requests the corresponding distance/duration matrix,
// maintaining the PointMap that aligns matrix indices back to the
// entities they represent.
package matrixbuilder

import (
	"context"
	"fmt"

	"github.com/shuttlecrew/routeplanner/internal/routing/geo"
	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// PointMap aligns matrix index 0 to the facility and indices 1..N to the
// N candidate employees, in the order Build was called with.
type PointMap struct {
	Facility  types.Facility
	Employees []types.Employee
}

// EmployeeAt returns the employee at matrix index i (i must be >= 1).
func (m PointMap) EmployeeAt(i int) types.Employee {
	return m.Employees[i-1]
}

// Len is the number of matrix rows/columns (facility + employees).
func (m PointMap) Len() int {
	return len(m.Employees) + 1
}

// Result bundles the matrices with the PointMap needed to interpret them.
type Result struct {
	PointMap  PointMap
	Distances [][]float64 // meters
	Durations [][]float64 // seconds
}

// Builder requests distance/duration matrices from the road service.
type Builder struct {
	road *roadclient.Client
}

// New creates a matrix Builder.
func New(road *roadclient.Client) *Builder {
	return &Builder{road: road}
}

// Build assembles points = [facility] ++ employees, requests a full
// square matrix from the road service, and verifies the response shape
// matches the point count. If employees is empty, it returns a "no
// candidates" error without calling the road service (spec.md §4.3).
func (b *Builder) Build(ctx context.Context, facility types.Facility, employees []types.Employee) (*Result, error) {
	if len(employees) == 0 {
		return nil, fmt.Errorf("matrixbuilder: no candidates")
	}

	points := make([]geo.Point, 0, len(employees)+1)
	points = append(points, geo.Point{Lat: facility.Lat, Lng: facility.Lng})
	for _, e := range employees {
		points = append(points, geo.Point{Lat: e.Lat, Lng: e.Lng})
	}

	table, err := b.road.Table(ctx, points, nil, nil)
	if err != nil {
		return nil, err
	}

	pointMap := PointMap{Facility: facility, Employees: employees}
	if len(table.Distances) != pointMap.Len() {
		return nil, fmt.Errorf("matrixbuilder: matrix size %d does not match point count %d", len(table.Distances), pointMap.Len())
	}

	return &Result{PointMap: pointMap, Distances: table.Distances, Durations: table.Durations}, nil
}
