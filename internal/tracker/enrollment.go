package tracker

import "time"

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment is one participation episode of a subject in a program. The ID
// stays empty until the caller persists the entity. At most one ACTIVE
// enrollment per (program, subject) is treated as authoritative; the
// resolver enforces that under the subject lock, not the storage layer.
type Enrollment struct {
	ID             string           `json:"id,omitempty"`
	ProgramID      string           `json:"program"`
	SubjectID      string           `json:"trackedSubject"`
	Status         EnrollmentStatus `json:"status"`
	EnrollmentDate time.Time        `json:"enrollmentDate"`
	IncidentDate   time.Time        `json:"incidentDate"`
	OrgUnitID      string           `json:"orgUnit"`
	Coordinate     *Coordinate      `json:"coordinate,omitempty"`
	Events         []*Event         `json:"events,omitempty"`

	New      bool `json:"-"`
	Modified bool `json:"-"`
}

// Clone deep-copies the enrollment including its events. Entities fetched
// from the backing store may be shared with a cache, so they are cloned
// before any mutation.
func (e *Enrollment) Clone() *Enrollment {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Coordinate != nil {
		c := *e.Coordinate
		clone.Coordinate = &c
	}
	clone.Events = make([]*Event, len(e.Events))
	for i, ev := range e.Events {
		clone.Events[i] = ev.Clone()
	}
	return &clone
}

// EventsForStage returns the enrollment's events belonging to the stage, in
// canonical order.
func (e *Enrollment) EventsForStage(stageID string) []*Event {
	var events []*Event
	for _, ev := range e.Events {
		if ev.ProgramStageID == stageID && !ev.Deleted {
			events = append(events, ev)
		}
	}
	SortEvents(events)
	return events
}

// AddEvent links a new event to the enrollment and marks it modified.
func (e *Enrollment) AddEvent(ev *Event) {
	e.Events = append(e.Events, ev)
	e.Modified = true
}

func (e *Enrollment) MarkModified() {
	e.Modified = true
}
