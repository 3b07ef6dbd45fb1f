package engine

import (
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
	pkgerrors "trackerbridge/pkg/errors"
)

// Outcome wraps the entities a successful transform touched. The engine never
// persists; the caller writes New/Modified entities back to the registry.
type Outcome struct {
	Rule       *rule.Rule              `json:"rule"`
	Subject    *tracker.TrackedSubject `json:"subject,omitempty"`
	Enrollment *tracker.Enrollment     `json:"enrollment,omitempty"`
	Event      *tracker.Event          `json:"event,omitempty"`
	Created    bool                    `json:"created"`
	Updated    bool                    `json:"updated"`
}

// DeleteOutcome reports what a deletion rule did to an existing event.
type DeleteOutcome struct {
	Rule    *rule.Rule     `json:"rule"`
	Event   *tracker.Event `json:"event"`
	Deleted bool           `json:"deleted"`
	Cleared []string       `json:"cleared,omitempty"`
}

// validateOutcome runs the structural checks before an outcome leaves the
// engine. Linkage violations are fatal (the engine assembled them itself);
// missing mandatory values are validation errors the caller can report back.
func validateOutcome(program *tracker.Program, stage *tracker.ProgramStage, enrollment *tracker.Enrollment, event *tracker.Event) error {
	if enrollment.ProgramID != program.ID {
		return pkgerrors.ErrFatal.WithMessage("enrollment is linked to a different program")
	}
	if enrollment.OrgUnitID == "" {
		return pkgerrors.ErrValidation.WithMessage("enrollment has no organization unit")
	}
	if enrollment.EnrollmentDate.IsZero() || enrollment.IncidentDate.IsZero() {
		return pkgerrors.ErrValidation.WithMessage("enrollment dates are not resolved")
	}

	if event == nil {
		return nil
	}
	if event.ProgramStageID != stage.ID {
		return pkgerrors.ErrFatal.WithMessage("event is linked to a different program stage")
	}
	if event.OrgUnitID == "" {
		return pkgerrors.ErrValidation.WithMessage("event has no organization unit")
	}
	if event.EventDate.IsZero() {
		return pkgerrors.ErrValidation.WithMessage("event date is not resolved")
	}

	if event.Status == tracker.EventCompleted {
		for _, def := range stage.DataElements {
			if def.Mandatory && !event.HasDataValue(def.Ref) {
				return pkgerrors.ErrValidation.
					WithMessage("mandatory data element is empty on a completed event").
					WithDetail("data_element", def.Ref)
			}
		}
	}
	return nil
}
