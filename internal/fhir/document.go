package fhir

import (
	"strings"
	"time"
)

// Kind tags the clinical resource type of an inbound document. The resource
// type system itself is external; the engine treats a document as an opaque
// payload with the handful of typed accessors below.
type Kind string

const (
	KindPatient      Kind = "Patient"
	KindObservation  Kind = "Observation"
	KindImmunization Kind = "Immunization"
	KindEncounter    Kind = "Encounter"
	KindCondition    Kind = "Condition"
	KindCarePlan     Kind = "CarePlan"
)

// Document is one inbound clinical resource.
type Document struct {
	ID          string                 `json:"id"`
	Kind        Kind                   `json:"kind"`
	LastUpdated *time.Time             `json:"lastUpdated,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
}

// SubjectRef returns the reference to the tracked person/case the document
// reports on.
func (d *Document) SubjectRef() string {
	switch d.Kind {
	case KindPatient:
		return d.ID
	default:
		return d.stringAt("subject", "reference")
	}
}

// StageRef returns the program-stage reference the document itself encodes,
// if any. Documents are free to omit it; the rule then decides the stage.
func (d *Document) StageRef() string {
	return d.stringAt("programStage")
}

// Status returns the document-level status field, lowercased.
func (d *Document) Status() string {
	return strings.ToLower(d.stringAt("status"))
}

// EffectiveTime returns the clinically effective timestamp carried by the
// document body, when present.
func (d *Document) EffectiveTime() (time.Time, bool) {
	for _, field := range []string{"effectiveDateTime", "occurrenceDateTime", "period.start", "issued"} {
		if raw := d.stringPath(field); raw != "" {
			if t, err := time.Parse(time.RFC3339, raw); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func (d *Document) stringAt(path ...string) string {
	var cur interface{} = d.Payload
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return ""
		}
		cur = m[p]
	}
	s, _ := cur.(string)
	return s
}

func (d *Document) stringPath(dotted string) string {
	return d.stringAt(strings.Split(dotted, ".")...)
}
