package rule

import (
	"fmt"

	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
	pkgerrors "trackerbridge/pkg/errors"
)

// Validator checks rule requests before they reach Postgres, compiling every
// script so broken expressions are rejected at configuration time instead of
// failing the first matching document.
type Validator struct {
	evaluator *cel.Evaluator
}

func NewValidator() (*Validator, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}
	return &Validator{evaluator: evaluator}, nil
}

func (v *Validator) ValidateCreate(req CreateRuleRequest) error {
	if req.Name == "" {
		return pkgerrors.ErrValidation.WithMessage("name is required")
	}
	if req.ResourceType == "" {
		return pkgerrors.ErrValidation.WithMessage("resource_type is required")
	}

	switch req.Kind {
	case KindSubject:
	case KindEnrollment:
		if req.ProgramID == "" {
			return pkgerrors.ErrValidation.WithMessage("program_id is required for enrollment rules")
		}
	case KindProgramStage:
		if req.ProgramID == "" {
			return pkgerrors.ErrValidation.WithMessage("program_id is required for program stage rules")
		}
		if req.StageID == "" {
			return pkgerrors.ErrValidation.WithMessage("stage_id is required for program stage rules")
		}
	default:
		return pkgerrors.ErrValidation.WithMessage("invalid kind").
			WithDetail("kind", string(req.Kind))
	}

	for _, de := range req.DataElements {
		if de.Ref == "" {
			return pkgerrors.ErrValidation.WithMessage("data element ref cannot be empty")
		}
	}

	if err := validateStatusFilters(req.ApplicableEnrollmentStatuses, req.ApplicableEventStatuses); err != nil {
		return err
	}
	if req.BeforePeriodDays != nil && *req.BeforePeriodDays < 0 {
		return pkgerrors.ErrValidation.WithMessage("before_period_days cannot be negative")
	}
	if req.AfterPeriodDays != nil && *req.AfterPeriodDays < 0 {
		return pkgerrors.ErrValidation.WithMessage("after_period_days cannot be negative")
	}

	return v.validateScripts(req.Scripts)
}

func (v *Validator) ValidateUpdate(req UpdateRuleRequest) error {
	if req.Name != nil && *req.Name == "" {
		return pkgerrors.ErrValidation.WithMessage("name cannot be empty")
	}
	if req.DataElements != nil {
		for _, de := range *req.DataElements {
			if de.Ref == "" {
				return pkgerrors.ErrValidation.WithMessage("data element ref cannot be empty")
			}
		}
	}

	var enrollmentStatuses []tracker.EnrollmentStatus
	if req.ApplicableEnrollmentStatuses != nil {
		enrollmentStatuses = *req.ApplicableEnrollmentStatuses
	}
	var eventStatuses []tracker.EventStatus
	if req.ApplicableEventStatuses != nil {
		eventStatuses = *req.ApplicableEventStatuses
	}
	if err := validateStatusFilters(enrollmentStatuses, eventStatuses); err != nil {
		return err
	}

	if req.Scripts != nil {
		return v.validateScripts(*req.Scripts)
	}
	return nil
}

func validateStatusFilters(enrollment []tracker.EnrollmentStatus, event []tracker.EventStatus) error {
	for _, s := range enrollment {
		switch s {
		case tracker.EnrollmentActive, tracker.EnrollmentCompleted, tracker.EnrollmentCancelled:
		default:
			return pkgerrors.ErrValidation.WithMessage("unknown enrollment status").
				WithDetail("status", string(s))
		}
	}
	for _, s := range event {
		switch s {
		case tracker.EventActive, tracker.EventCompleted, tracker.EventVisited,
			tracker.EventSchedule, tracker.EventOverdue, tracker.EventSkipped:
		default:
			return pkgerrors.ErrValidation.WithMessage("unknown event status").
				WithDetail("status", string(s))
		}
	}
	return nil
}

func (v *Validator) validateScripts(scripts Scripts) error {
	for slot, script := range map[string]string{
		"applicability":            scripts.Applicability,
		"transform":                scripts.Transform,
		"enrollment_date":          scripts.EnrollmentDate,
		"event_date":               scripts.EventDate,
		"enrollment_applicability": scripts.EnrollmentApplicability,
		"enrollment_transform":     scripts.EnrollmentTransform,
		"before":                   scripts.Before,
		"after":                    scripts.After,
		"org_unit":                 scripts.OrgUnit,
	} {
		if script == "" {
			continue
		}
		if err := v.evaluator.Validate(script); err != nil {
			return pkgerrors.ErrValidation.
				WithMessage(fmt.Sprintf("invalid CEL expression in %s script", slot)).
				WithCause(err)
		}
	}
	return nil
}
