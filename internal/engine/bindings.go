package engine

import (
	"context"
	"errors"
	"time"

	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
	pkgerrors "trackerbridge/pkg/errors"
)

// ScriptEvaluator is the embedded script evaluator collaborator. The CEL
// implementation in pkg/cel satisfies it; tests substitute fakes.
type ScriptEvaluator interface {
	EvaluateBool(ctx context.Context, script string, bindings cel.Bindings) (bool, error)
	EvaluateDate(ctx context.Context, script string, bindings cel.Bindings) (time.Time, bool, error)
	EvaluateString(ctx context.Context, script string, bindings cel.Bindings) (string, error)
	EvaluateVerdict(ctx context.Context, script string, bindings cel.Bindings) (cel.Verdict, error)
	EvaluateTransform(ctx context.Context, script string, bindings cel.Bindings) (map[string]interface{}, error)
}

// scriptError classifies an evaluator failure: scripts that do not compile
// are configuration faults, scripts that fail at runtime are data faults.
func scriptError(err error) error {
	if err == nil {
		return nil
	}
	var compileErr *cel.CompileError
	if errors.As(err, &compileErr) {
		return pkgerrors.ErrMapping.WithCause(err)
	}
	return pkgerrors.ErrData.WithCause(err)
}

// newBindings assembles the working set of script-visible values once per
// transform.
func (tc *transformContext) newBindings(codeMap map[string]string) cel.Bindings {
	b := cel.Bindings{
		"document":     tc.doc.Payload,
		"subject":      subjectMap(tc.subject),
		"enrollment":   map[string]interface{}{},
		"event":        map[string]interface{}{},
		"programStage": stageMap(tc.stage),
		"orgUnit":      "",
		"codes":        codeMap,
		"now":          tc.now,
		"input":        tc.vars.Extra,
	}
	if b["document"] == nil {
		b["document"] = map[string]interface{}{}
	}
	if b["codes"] == nil {
		b["codes"] = map[string]string{}
	}
	if b["input"] == nil {
		b["input"] = map[string]interface{}{}
	}
	return b
}

func subjectMap(s *tracker.TrackedSubject) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	attrs := make(map[string]interface{}, len(s.Attributes))
	for k, v := range s.Attributes {
		attrs[k] = v
	}
	return map[string]interface{}{
		"id":         s.ID,
		"orgUnit":    s.OrgUnitID,
		"attributes": attrs,
	}
}

func stageMap(s *tracker.ProgramStage) map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":                        s.ID,
		"program":                   s.ProgramID,
		"name":                      s.Name,
		"repeatable":                s.Repeatable,
		"generatedByEnrollmentDate": s.GeneratedByEnrollmentDate,
		"minDaysFromStart":          s.MinDaysFromStart,
	}
}

func enrollmentMap(e *tracker.Enrollment) map[string]interface{} {
	if e == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":             e.ID,
		"program":        e.ProgramID,
		"subject":        e.SubjectID,
		"status":         string(e.Status),
		"enrollmentDate": e.EnrollmentDate,
		"incidentDate":   e.IncidentDate,
		"orgUnit":        e.OrgUnitID,
		"isNew":          e.New,
	}
}

func eventMap(e *tracker.Event) map[string]interface{} {
	if e == nil {
		return map[string]interface{}{}
	}
	values := make(map[string]interface{}, len(e.DataValues))
	for _, dv := range e.DataValues {
		values[dv.DataElement] = dv.Value
	}
	return map[string]interface{}{
		"id":           e.ID,
		"program":      e.ProgramID,
		"programStage": e.ProgramStageID,
		"status":       string(e.Status),
		"eventDate":    e.EventDate,
		"dueDate":      e.DueDate,
		"orgUnit":      e.OrgUnitID,
		"dataValues":   values,
		"isNew":        e.New,
	}
}

// bindEnrollment and bindEvent refresh the working set after resolution so
// later scripts see the selected resources.
func bindEnrollment(b cel.Bindings, e *tracker.Enrollment) {
	b["enrollment"] = enrollmentMap(e)
}

func bindEvent(b cel.Bindings, e *tracker.Event) {
	b["event"] = eventMap(e)
}

func bindOrgUnit(b cel.Bindings, orgUnitID string) {
	b["orgUnit"] = orgUnitID
}
