package engine

import (
	"context"
	"time"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
)

// Clock abstracts time so date-cascade fallbacks are testable with a frozen
// clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the production clock.
var SystemClock Clock = systemClock{}

// Variables carries the caller's per-invocation options and extra script
// context. It replaces the mutable variable maps the source system threaded
// through every method: assembled once, passed as one value.
type Variables struct {
	// CreateOnly requests create-once semantics: finding an existing,
	// already populated event is a conflict rather than an update.
	CreateOnly bool
	// Refresh forces non-cached reads from the backing store.
	Refresh bool
	// Extra is exposed to scripts under the "input" binding.
	Extra map[string]interface{}
}

// SubjectResolver is the external identity-matching collaborator. A nil
// subject with nil error means no match.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, doc *fhir.Document) (*tracker.TrackedSubject, error)
}

// transformContext is the immutable per-invocation state assembled by the
// orchestrator before any gate runs.
type transformContext struct {
	doc     *fhir.Document
	rule    *rule.Rule
	program *tracker.Program
	stage   *tracker.ProgramStage
	subject *tracker.TrackedSubject
	vars    Variables
	now     time.Time
}

// lazyDate memoizes a date computation so gates that never need it never pay
// for it, and gates that share it agree on the value.
type lazyDate func() (time.Time, error)

func memoizeDate(f func() (time.Time, error)) lazyDate {
	var (
		done bool
		t    time.Time
		err  error
	)
	return func() (time.Time, error) {
		if !done {
			t, err = f()
			done = true
		}
		return t, err
	}
}

func fixedDate(t time.Time) lazyDate {
	return func() (time.Time, error) { return t, nil }
}
