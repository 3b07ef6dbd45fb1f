package tracker

import (
	"sort"
	"strings"
	"time"
)

type EventStatus string

const (
	EventActive    EventStatus = "ACTIVE"
	EventCompleted EventStatus = "COMPLETED"
	EventVisited   EventStatus = "VISITED"
	EventSchedule  EventStatus = "SCHEDULE"
	EventOverdue   EventStatus = "OVERDUE"
	EventSkipped   EventStatus = "SKIPPED"
)

// statusRank fixes the sort position of each status. Unknown statuses sort
// last so a registry upgrade cannot reorder existing candidates.
var statusRank = map[EventStatus]int{
	EventActive:    0,
	EventCompleted: 1,
	EventVisited:   2,
	EventSchedule:  3,
	EventOverdue:   4,
	EventSkipped:   5,
}

// Event is one occurrence of data capture within a program stage of an
// enrollment.
type Event struct {
	ID             string      `json:"id,omitempty"`
	EnrollmentID   string      `json:"enrollment,omitempty"`
	ProgramID      string      `json:"program"`
	ProgramStageID string      `json:"programStage"`
	Status         EventStatus `json:"status"`
	EventDate      time.Time   `json:"eventDate"`
	DueDate        time.Time   `json:"dueDate"`
	LastUpdated    *time.Time  `json:"lastUpdated,omitempty"`
	OrgUnitID      string      `json:"orgUnit"`
	Coordinate     *Coordinate `json:"coordinate,omitempty"`
	DataValues     []DataValue `json:"dataValues,omitempty"`

	New      bool `json:"-"`
	Modified bool `json:"-"`
	Deleted  bool `json:"-"`

	modifiedValues map[string]struct{}
}

type DataValue struct {
	DataElement       string `json:"dataElement"`
	Value             string `json:"value"`
	ProvidedElsewhere bool   `json:"providedElsewhere,omitempty"`
}

// Clone deep-copies the event so shared cache instances stay untouched.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.LastUpdated != nil {
		t := *e.LastUpdated
		clone.LastUpdated = &t
	}
	if e.Coordinate != nil {
		c := *e.Coordinate
		clone.Coordinate = &c
	}
	clone.DataValues = make([]DataValue, len(e.DataValues))
	copy(clone.DataValues, e.DataValues)
	clone.modifiedValues = nil
	return &clone
}

// DataValue returns the value stored for the data element reference, or ""
// when absent.
func (e *Event) DataValue(ref string) string {
	for i := range e.DataValues {
		if e.DataValues[i].DataElement == ref {
			return e.DataValues[i].Value
		}
	}
	return ""
}

// HasDataValue reports whether the data element currently holds a non-blank
// value.
func (e *Event) HasDataValue(ref string) bool {
	return strings.TrimSpace(e.DataValue(ref)) != ""
}

// SetDataValue writes a value, preserving insertion order and recording the
// per-value modification only when the stored value actually changes.
func (e *Event) SetDataValue(ref, value string) bool {
	for i := range e.DataValues {
		if e.DataValues[i].DataElement == ref {
			if e.DataValues[i].Value == value {
				return false
			}
			e.DataValues[i].Value = value
			e.markValueModified(ref)
			return true
		}
	}
	e.DataValues = append(e.DataValues, DataValue{DataElement: ref, Value: value})
	e.markValueModified(ref)
	return true
}

// ClearDataValue blanks a data element. Returns true only if it held a
// value, so unrelated rules sharing the event do not force spurious updates.
func (e *Event) ClearDataValue(ref string) bool {
	for i := range e.DataValues {
		if e.DataValues[i].DataElement == ref {
			if e.DataValues[i].Value == "" {
				return false
			}
			e.DataValues[i].Value = ""
			e.markValueModified(ref)
			return true
		}
	}
	return false
}

func (e *Event) markValueModified(ref string) {
	if e.modifiedValues == nil {
		e.modifiedValues = make(map[string]struct{})
	}
	e.modifiedValues[ref] = struct{}{}
	e.Modified = true
}

// ModifiedValues lists the data element references written during this
// transform, in no particular order.
func (e *Event) ModifiedValues() []string {
	refs := make([]string, 0, len(e.modifiedValues))
	for ref := range e.modifiedValues {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// SortEvents orders candidate events deterministically: status ascending,
// event date ascending, last-updated ascending with nulls last, id ascending
// with empty ids last.
func SortEvents(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return CompareEvents(events[i], events[j]) < 0
	})
}

// CompareEvents implements the canonical candidate ordering.
func CompareEvents(a, b *Event) int {
	if ra, rb := rankOf(a.Status), rankOf(b.Status); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if !a.EventDate.Equal(b.EventDate) {
		if a.EventDate.Before(b.EventDate) {
			return -1
		}
		return 1
	}
	if c := compareTimePtr(a.LastUpdated, b.LastUpdated); c != 0 {
		return c
	}
	return compareIDs(a.ID, b.ID)
}

func rankOf(s EventStatus) int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return len(statusRank)
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Equal(*b):
		return 0
	case a.Before(*b):
		return -1
	default:
		return 1
	}
}

func compareIDs(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}
