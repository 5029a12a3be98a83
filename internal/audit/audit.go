// Package audit records a durable trail of planning requests, adapted
// from the teacher's internal/common/logging/audit.go CRUD audit trail
// (action/resource/changes events keyed by user+company) down to this
// service's one write path: a batch planning request and its outcome.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/shuttlecrew/routeplanner/internal/common/logging"
	"github.com/shuttlecrew/routeplanner/internal/routing/types"
)

// Logger persists a structured record of every planning request, both to
// the structured logger (for live tailing) and to Postgres (for later
// query), the same split the teacher's AuditLogger keeps between its
// logEvent structured-log call and its async db.Table(...).Create.
type Logger struct {
	logger *logging.Logger
	db     *gorm.DB
}

// New creates a planning audit Logger. db may be nil, in which case
// events are only logged, never persisted — mirroring the teacher's own
// nil-db guard in logEvent.
func New(logger *logging.Logger, db *gorm.DB) *Logger {
	return &Logger{logger: logger, db: db}
}

// Event describes the outcome of one Plan call.
type Event struct {
	RequestID            string    `json:"request_id"`
	TripType             string    `json:"trip_type"`
	TotalEmployees       int       `json:"total_employees"`
	TotalRoutedEmployees int       `json:"total_routed_employees"`
	TotalRoutes          int       `json:"total_routes"`
	TotalSwappedRoutes   int       `json:"total_swapped_routes"`
	TotalGuardedRoutes   int       `json:"total_guarded_routes"`
	UnroutedCount        int       `json:"unrouted_count"`
	Error                string    `json:"error,omitempty"`
	DurationMs           int64     `json:"duration_ms"`
	Timestamp            time.Time `json:"timestamp"`
}

// LogPlan records a completed (successful or failed) planning request.
func (l *Logger) LogPlan(ctx context.Context, input types.PlanningInput, output *types.PlanningOutput, planErr error, elapsed time.Duration) {
	event := Event{
		RequestID:  input.RequestID,
		TripType:   string(input.TripType),
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	}

	if planErr != nil {
		event.Error = planErr.Error()
		event.TotalEmployees = len(input.Employees)
	} else if output != nil {
		event.TotalEmployees = output.TotalEmployees
		event.TotalRoutedEmployees = output.TotalRoutedEmployees
		event.TotalRoutes = output.TotalRoutes
		event.TotalSwappedRoutes = output.TotalSwappedRoutes
		event.TotalGuardedRoutes = output.TotalGuardedRoutes
		event.UnroutedCount = len(output.UnroutedEmployees)
	}

	l.logEvent(ctx, &event)
}

func (l *Logger) logEvent(_ context.Context, event *Event) {
	fields := map[string]interface{}{
		"request_id":              event.RequestID,
		"trip_type":               event.TripType,
		"total_employees":         event.TotalEmployees,
		"total_routed_employees":  event.TotalRoutedEmployees,
		"total_routes":            event.TotalRoutes,
		"unrouted_count":          event.UnroutedCount,
		"duration_ms":             event.DurationMs,
	}
	if event.Error != "" {
		fields["error"] = event.Error
		l.logger.WithFields(fields).Warn("planning request failed")
	} else {
		l.logger.WithFields(fields).Info("planning request recorded")
	}

	if l.db == nil {
		return
	}

	go func() {
		detailsJSON, _ := json.Marshal(event)
		row := map[string]interface{}{
			"request_id": event.RequestID,
			"trip_type":  event.TripType,
			"error":      event.Error,
			"details":    string(detailsJSON),
			"created_at": event.Timestamp,
		}
		l.db.Table("planning_audit_logs").Create(row)
	}()
}
