// Package solverclient launches the external VRP solver as a subprocess,
// writing a JSON problem on stdin and reading a JSON solution on stdout.
// No library in the retrieved corpus wraps "spawn an arbitrary external
// binary over JSON stdio" — every RPC-shaped client in the examples talks
// gRPC or HTTP to a long-lived service (e.g. the Hola-to gateway-svc
// solver.go) rather than a one-shot subprocess, so this package is a
// deliberate, documented stdlib (os/exec + encoding/json) exception; see
// DESIGN.md.
package solverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Error is raised for non-zero exit, parse failure, or a solution that
// itself carries an "error" field.
type Error struct {
	Message string
	Stderr  string
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("solver failure: %s (stderr: %s)", e.Message, e.Stderr)
	}
	return fmt.Sprintf("solver failure: %s", e.Message)
}

// Problem is the JSON payload written to the solver's stdin, mirroring
// spec.md §4.2's field list exactly.
type Problem struct {
	DistanceMatrix               [][]float64 `json:"distance_matrix"`
	DurationMatrix                [][]float64 `json:"duration_matrix"`
	NumVehicles                  int         `json:"num_vehicles"`
	VehicleCapacities             []int       `json:"vehicle_capacities"`
	Demands                       []int       `json:"demands"`
	DepotIndex                   int         `json:"depot_index"`
	MaxRouteDuration              float64     `json:"max_route_duration"`
	ServiceTimes                  []float64   `json:"service_times"`
	AllowDroppingVisits           bool        `json:"allow_dropping_visits"`
	DropVisitPenalty              float64     `json:"drop_visit_penalty"`
	FacilityCoords                [2]float64  `json:"facility_coords"`
	TripType                      string      `json:"trip_type"`
	DirectionPenaltyWeight        float64     `json:"direction_penalty_weight"`
	FixedStartNodeIndexInMatrix   *int        `json:"fixed_start_node_index_in_matrix,omitempty"`
	FixedEndNodeIndexInMatrix     *int        `json:"fixed_end_node_index_in_matrix,omitempty"`
	OtherCustomerNodeIndices      []int       `json:"other_customer_node_indices_in_matrix,omitempty"`
}

// SolvedRoute is one vehicle's assignment in the solution.
type SolvedRoute struct {
	VehicleIndex int   `json:"vehicle_index"`
	NodeIndices  []int `json:"node_indices"`
}

// Solution is the JSON payload read from the solver's stdout.
type Solution struct {
	Routes             []SolvedRoute `json:"routes"`
	DroppedNodeIndices []int         `json:"dropped_node_indices"`
	Error              string        `json:"error,omitempty"`
}

// Client spawns the configured solver binary per Solve call.
type Client struct {
	binaryPath string
	args       []string
}

// Config configures a Client.
type Config struct {
	BinaryPath string
	Args       []string
}

// New creates a solver client.
func New(cfg Config) *Client {
	return &Client{binaryPath: cfg.BinaryPath, args: cfg.Args}
}

// Solve runs the solver subprocess against one problem and returns its
// parsed solution. The caller's context bounds the subprocess lifetime;
// cancellation kills the process and returns a solver error.
func (c *Client) Solve(ctx context.Context, problem Problem) (*Solution, error) {
	payload, err := json.Marshal(problem)
	if err != nil {
		return nil, &Error{Message: "failed to marshal problem: " + err.Error()}
	}

	cmd := exec.CommandContext(ctx, c.binaryPath, c.args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return nil, &Error{Message: "solver exited non-zero: " + runErr.Error(), Stderr: stderr.String()}
	}

	solution, parseErr := parseSolution(stdout.Bytes())
	if parseErr != nil {
		return nil, &Error{Message: parseErr.Error(), Stderr: stderr.String()}
	}

	if solution.Error != "" {
		return nil, &Error{Message: solution.Error, Stderr: stderr.String()}
	}

	return solution, nil
}

// parseSolution reads the last balanced JSON object from the solver's
// stdout, tolerating trailing log lines the binary may emit after its
// result (spec.md §4.2).
func parseSolution(output []byte) (*Solution, error) {
	start, end, ok := lastBalancedObject(output)
	if !ok {
		return nil, fmt.Errorf("no balanced JSON object found in solver output")
	}

	var solution Solution
	if err := json.Unmarshal(output[start:end], &solution); err != nil {
		return nil, fmt.Errorf("malformed solver output: %w", err)
	}

	return &solution, nil
}

// lastBalancedObject scans output for the last balanced '{...}' span: the
// one closed by the last '}' that matches an earlier '{'. It skips over
// quoted strings so braces inside string values don't confuse the scan,
// and unmatched braces in surrounding log lines never pair with the
// object's own braces.
func lastBalancedObject(output []byte) (start, end int, ok bool) {
	var opens []int
	inString := false
	escaped := false

	for i, b := range output {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			opens = append(opens, i)
		case '}':
			if n := len(opens); n > 0 {
				start, end, ok = opens[n-1], i+1, true
				opens = opens[:n-1]
			}
		}
	}

	return start, end, ok
}
