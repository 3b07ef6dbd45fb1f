package tracker

// Program is the immutable-per-version program definition loaded from
// registry metadata. Instances are shared across concurrent transforms and
// must never be mutated by the engine.
type Program struct {
	ID                          string         `json:"id"`
	Name                        string         `json:"name"`
	Registration                bool           `json:"registration"`
	DisallowFutureEnrollmentDate bool          `json:"disallowFutureEnrollmentDate"`
	DisallowFutureIncidentDate  bool           `json:"disallowFutureIncidentDate"`
	Stages                      []ProgramStage `json:"programStages,omitempty"`
	TrackedAttributes           []string       `json:"trackedAttributes,omitempty"`
}

// Stage returns the stage with the given id, or nil.
func (p *Program) Stage(id string) *ProgramStage {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i]
		}
	}
	return nil
}

// ProgramStage belongs to exactly one Program.
type ProgramStage struct {
	ID                        string           `json:"id"`
	ProgramID                 string           `json:"program"`
	Name                      string           `json:"name"`
	Repeatable                bool             `json:"repeatable"`
	GeneratedByEnrollmentDate bool             `json:"generatedByEnrollmentDate"`
	MinDaysFromStart          int              `json:"minDaysFromStart"`
	DataElements              []DataElementDef `json:"dataElements,omitempty"`
	CaptureCoordinates        bool             `json:"captureCoordinates"`
	CreationEnabled           bool             `json:"creationEnabled"`
	DefaultStatus             EventStatus      `json:"defaultStatus,omitempty"`
}

// DataElement returns the definition for the given reference, or nil.
func (s *ProgramStage) DataElement(ref string) *DataElementDef {
	for i := range s.DataElements {
		if s.DataElements[i].Ref == ref {
			return &s.DataElements[i]
		}
	}
	return nil
}

type DataElementDef struct {
	Ref       string `json:"ref"`
	Name      string `json:"name"`
	ValueType string `json:"valueType,omitempty"`
	Mandatory bool   `json:"mandatory"`
}

// TrackedSubject is the person/case referenced by all of its enrollments.
// Identity resolution happens upstream; the engine only reads it.
type TrackedSubject struct {
	ID         string            `json:"id"`
	OrgUnitID  string            `json:"orgUnit,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}
