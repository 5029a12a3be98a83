// Package timing derives per-employee ETAs for a committed route from
// its leg durations, applying a multiplicative traffic buffer and
// walking the legs forward (DROPOFF) or backward (PICKUP) from the
// shift's anchor time. It is grounded on the teacher's scheduling time
// arithmetic in route_optimizer.go (time.Time-based ETA accumulation).
package timing

import (
	"fmt"
	"time"

	"github.com/shuttlecrew/routeplanner/internal/routing/roadclient"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// TrafficBufferPercentage is applied multiplicatively to every leg
// duration before it is added to the accumulated ETA walk (spec.md §4.8).
const TrafficBufferPercentage = 0.4

// ErrorSentinel is emitted for every employee's ETA when timing
// computation fails; the route is still returned with this flag set
// rather than being dropped.
const ErrorSentinel = "Error"

// shiftLayout matches the external "HHMM" shift time format.
const shiftLayout = "1504"

// Calculator derives ETAs for a route's employees.
type Calculator struct{}

// New creates a TimingCalculator.
func New() *Calculator {
	return &Calculator{}
}

// Result carries the computed ETA strings, keyed by employee order, and
// whether the computation failed.
type Result struct {
	ETAs   []string
	Failed bool
}

// Compute derives per-employee ETAs for a route given its leg durations
// in travel order, the shift anchor time ("HHMM"), the reporting buffer
// (seconds, PICKUP only), and the per-employee service time (seconds).
// Route coordinates place the facility at one end (PICKUP: after the
// last employee; DROPOFF: before the first), so legs and employees are
// equal in count: for PICKUP legs[i] runs from employee i to the next
// stop, for DROPOFF legs[i] runs from the previous stop to employee i.
//
// PICKUP walks backward from facility arrival time (shiftTime minus the
// reporting buffer), subtracting each leg's buffered duration plus
// service time. DROPOFF walks forward from the facility departure time
// (shiftTime), adding each leg's buffered duration plus service time.
func (c *Calculator) Compute(legs []roadclient.LegResult, tripType types.TripType, shiftTime string, date string, reportingTimeSeconds float64, serviceTimeSeconds float64) Result {
	n := len(legs)
	anchor, err := parseAnchor(shiftTime, date)
	if err != nil {
		return failedResult(n)
	}

	etas := make([]string, n)

	if tripType == types.Pickup {
		cursor := anchor.Add(-time.Duration(reportingTimeSeconds) * time.Second)
		// legs[i] connects employee i to the next stop (employee i+1, or the
		// facility when i is the last employee); walk backward from the
		// facility arrival time.
		for i := n - 1; i >= 0; i-- {
			buffered := bufferedDuration(legs[i].Duration)
			cursor = cursor.Add(-buffered - time.Duration(serviceTimeSeconds)*time.Second)
			etas[i] = formatETA(cursor)
		}
		return Result{ETAs: etas}
	}

	// DROPOFF: forward from facility departure. legs[i] connects the
	// previous stop (the facility, for i==0) to employee i.
	cursor := anchor
	for i, leg := range legs {
		buffered := bufferedDuration(leg.Duration)
		cursor = cursor.Add(buffered + time.Duration(serviceTimeSeconds)*time.Second)
		etas[i] = formatETA(cursor)
	}
	return Result{ETAs: etas}
}

func bufferedDuration(seconds float64) time.Duration {
	return time.Duration(seconds*(1+TrafficBufferPercentage)) * time.Second
}

func parseAnchor(shiftTime, date string) (time.Time, error) {
	t, err := time.Parse(shiftLayout, shiftTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("timing: invalid shift time %q: %w", shiftTime, err)
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		// date may be absent or in another format; fall back to today's
		// date with the parsed time-of-day, since only relative ETA
		// ordering within the route matters downstream.
		d = time.Now().Truncate(24 * time.Hour)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func formatETA(t time.Time) string {
	return t.Format("03:04 PM")
}

func failedResult(n int) Result {
	etas := make([]string, n)
	for i := range etas {
		etas[i] = ErrorSentinel
	}
	return Result{ETAs: etas, Failed: true}
}
