package engine

import (
	"context"
	"time"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
)

// DateResolver turns rule scripts and document metadata into concrete
// enrollment/event timestamps.
type DateResolver struct {
	scripts ScriptEvaluator
	clock   Clock
	logger  logger.Logger
}

func NewDateResolver(scripts ScriptEvaluator, clock Clock, log logger.Logger) *DateResolver {
	return &DateResolver{scripts: scripts, clock: clock, logger: log}
}

// Resolve runs the date cascade: script result, then the document's
// last-modified timestamp, then now. Script failures abort; missing data
// only falls through.
func (r *DateResolver) Resolve(ctx context.Context, script string, doc *fhir.Document, bindings cel.Bindings) (time.Time, error) {
	if script != "" {
		t, ok, err := r.scripts.EvaluateDate(ctx, script, bindings)
		if err != nil {
			return time.Time{}, scriptError(err)
		}
		if ok {
			return t, nil
		}
	}

	if doc != nil && doc.LastUpdated != nil {
		r.logger.DebugwCtx(ctx, "Falling back to document last-updated timestamp",
			"timestamp", doc.LastUpdated,
		)
		return *doc.LastUpdated, nil
	}

	now := r.clock.Now()
	r.logger.DebugwCtx(ctx, "Falling back to current time for date resolution",
		"timestamp", now,
	)
	return now, nil
}

// EventDate resolves the event date for a stage. Stages generated by the
// enrollment date skip the cascade entirely.
func (r *DateResolver) EventDate(ctx context.Context, script string, stage *tracker.ProgramStage, enrollmentDate time.Time, doc *fhir.Document, bindings cel.Bindings) (time.Time, error) {
	if stage.GeneratedByEnrollmentDate {
		return enrollmentDate.AddDate(0, 0, stage.MinDaysFromStart), nil
	}
	return r.Resolve(ctx, script, doc, bindings)
}

// DueDate is always max(incidentDate + minDaysFromStart, eventDate).
func DueDate(incidentDate, eventDate time.Time, minDaysFromStart int) time.Time {
	scheduled := incidentDate.AddDate(0, 0, minDaysFromStart)
	if eventDate.After(scheduled) {
		return eventDate
	}
	return scheduled
}

// violatesFuturePolicy reports whether a resolved date breaks the program's
// no-future-dates policy. A violation makes the rule not applicable rather
// than failing the document.
func violatesFuturePolicy(date time.Time, disallowFuture bool, now time.Time) bool {
	return disallowFuture && date.After(now)
}

// absDayDistance is the absolute calendar-day distance between two
// timestamps, ignoring the time of day.
func absDayDistance(a, b time.Time) int {
	days := int(dateOnly(a).Sub(dateOnly(b)).Hours() / 24)
	if days < 0 {
		return -days
	}
	return days
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// parseScriptTime accepts the two timestamp shapes scripts emit.
func parseScriptTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
