package registry

import (
	"context"

	"trackerbridge/internal/tracker"
)

// Client is the read side of the backing tracker registry. The engine never
// writes through it; mutated entities go back to the caller for persistence.
type Client interface {
	// FindActiveEnrollment returns the latest ACTIVE enrollment for the
	// (program, subject) pair, or nil when none exists. forceRefresh
	// bypasses any server- or client-side caching.
	FindActiveEnrollment(ctx context.Context, programID, subjectID string, forceRefresh bool) (*tracker.Enrollment, error)

	// GetEnrollment fetches one enrollment with its events by id.
	GetEnrollment(ctx context.Context, id string) (*tracker.Enrollment, error)

	// GetEvent fetches one event by id, or nil when absent.
	GetEvent(ctx context.Context, id string) (*tracker.Event, error)

	// FindTrackedSubject resolves a document's subject reference to the
	// registered person/case, or nil when no identity match exists.
	FindTrackedSubject(ctx context.Context, ref string) (*tracker.TrackedSubject, error)

	// FindOrgUnit resolves an author/submitter reference to an org unit
	// id. Empty result means the reference does not map to any unit.
	FindOrgUnit(ctx context.Context, ref string) (string, error)
}
