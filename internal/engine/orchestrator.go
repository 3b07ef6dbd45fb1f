package engine

import (
	"context"
	"strconv"
	"time"

	"trackerbridge/internal/codes"
	"trackerbridge/internal/fhir"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/metadata"
	"trackerbridge/internal/registry"
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
	pkgerrors "trackerbridge/pkg/errors"
	"trackerbridge/pkg/logging"
	"trackerbridge/pkg/metrics"
)

// Engine is the transform orchestrator. One Transform invocation runs
// synchronously on the calling goroutine; callers provide concurrency across
// subjects and the per-subject lock provides the serialization.
type Engine struct {
	metadata *metadata.Service
	resolver *Resolver
	scripts  ScriptEvaluator
	codes    codes.Resolver
	dates    *DateResolver
	store    registry.Client
	clock    Clock
	logger   logger.Logger
}

func NewEngine(meta *metadata.Service, resolver *Resolver, scripts ScriptEvaluator, codeResolver codes.Resolver, dates *DateResolver, store registry.Client, clock Clock, log logger.Logger) *Engine {
	if clock == nil {
		clock = SystemClock
	}
	return &Engine{
		metadata: meta,
		resolver: resolver,
		scripts:  scripts,
		codes:    codeResolver,
		dates:    dates,
		store:    store,
		clock:    clock,
		logger:   log,
	}
}

// Transform runs one document through one rule. A nil outcome with nil error
// means the rule is not applicable and the caller should try the next one.
func (e *Engine) Transform(ctx context.Context, doc *fhir.Document, r *rule.Rule, vars Variables) (outcome *Outcome, err error) {
	start := e.clock.Now()
	ctx = logging.WithDocumentID(ctx, doc.ID)
	ctx = logging.WithRuleID(ctx, r.ID)

	defer func() {
		status := "success"
		switch {
		case err != nil:
			status = "error"
		case outcome == nil:
			status = "not_applicable"
		}
		metrics.IncTransform(r.ResourceType, status)
		metrics.ObserveTransformDuration(r.ResourceType, status, e.clock.Now().Sub(start))
		metrics.IncRuleEvaluation(r.ID, status)
	}()

	if !r.Enabled || !r.ImportEnabled {
		return nil, nil
	}
	if string(doc.Kind) != r.ResourceType {
		return nil, nil
	}

	subject, err := e.resolver.ResolveTrackedSubject(ctx, doc)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		return nil, pkgerrors.ErrData.WithMessage("tracked subject not found").
			WithDetail("document_id", doc.ID)
	}
	ctx = logging.WithSubjectID(ctx, subject.ID)

	switch r.Kind {
	case rule.KindSubject:
		return e.transformSubject(ctx, doc, r, subject, vars)
	case rule.KindEnrollment:
		return e.transformEnrollment(ctx, doc, r, subject, vars)
	case rule.KindProgramStage:
		return e.transformProgramStage(ctx, doc, r, subject, vars)
	default:
		return nil, pkgerrors.ErrMapping.WithMessage("unknown rule kind").
			WithDetail("kind", string(r.Kind))
	}
}

// transformSubject handles rules that only maintain tracked-subject
// attributes. No enrollment or event is touched, so no lock is taken.
func (e *Engine) transformSubject(ctx context.Context, doc *fhir.Document, r *rule.Rule, subject *tracker.TrackedSubject, vars Variables) (*Outcome, error) {
	tc := &transformContext{doc: doc, rule: r, subject: subject, vars: vars, now: e.clock.Now()}
	bindings, err := e.newBindings(ctx, tc)
	if err != nil {
		return nil, err
	}

	applicable, err := e.applicabilityGate(ctx, r, bindings)
	if err != nil || !applicable {
		return nil, err
	}

	if r.Scripts.Transform == "" {
		return nil, nil
	}
	values, err := e.scripts.EvaluateTransform(ctx, r.Scripts.Transform, bindings)
	if err != nil {
		return nil, scriptError(err)
	}

	updated := false
	for ref, value := range values {
		s := valueToString(value)
		if subject.Attributes == nil {
			subject.Attributes = make(map[string]string)
		}
		if subject.Attributes[ref] != s {
			subject.Attributes[ref] = s
			updated = true
		}
	}
	if !updated {
		return nil, nil
	}
	return &Outcome{Rule: r, Subject: subject, Updated: true}, nil
}

// transformEnrollment handles enrollment-level rules: the enrollment itself
// is the target, no event is resolved.
func (e *Engine) transformEnrollment(ctx context.Context, doc *fhir.Document, r *rule.Rule, subject *tracker.TrackedSubject, vars Variables) (*Outcome, error) {
	program, err := e.metadata.GetProgram(ctx, r.ProgramID)
	if err != nil {
		return nil, err
	}

	tc := &transformContext{doc: doc, rule: r, program: program, subject: subject, vars: vars, now: e.clock.Now()}
	bindings, err := e.newBindings(ctx, tc)
	if err != nil {
		return nil, err
	}

	applicable, err := e.applicabilityGate(ctx, r, bindings)
	if err != nil || !applicable {
		return nil, err
	}

	enrollment, err := e.resolver.ResolveEnrollment(ctx, program, subject, vars.Refresh)
	if err != nil {
		return nil, err
	}

	created := false
	if enrollment == nil {
		enrollment, err = e.resolver.CreateEnrollment(ctx, tc, bindings)
		if err != nil || enrollment == nil {
			return nil, err
		}
		created = true
	} else {
		if !r.EnrollmentStatusApplicable(enrollment.Status) {
			return nil, nil
		}
		if !r.UpdateEnabled {
			return nil, nil
		}
	}
	bindEnrollment(bindings, enrollment)

	updated := false
	if r.Scripts.Transform != "" {
		values, err := e.scripts.EvaluateTransform(ctx, r.Scripts.Transform, bindings)
		if err != nil {
			return nil, scriptError(err)
		}
		if applyEnrollmentTransform(enrollment, values) {
			enrollment.MarkModified()
			updated = true
		}
	}
	if !created && !updated {
		return nil, nil
	}

	if err := validateOutcome(program, nil, enrollment, nil); err != nil {
		return nil, err
	}
	return &Outcome{Rule: r, Subject: subject, Enrollment: enrollment, Created: created, Updated: updated}, nil
}

// transformProgramStage is the main pipeline: locate or create the
// enrollment and event, gate on status and date window, apply the transform
// script, validate.
func (e *Engine) transformProgramStage(ctx context.Context, doc *fhir.Document, r *rule.Rule, subject *tracker.TrackedSubject, vars Variables) (*Outcome, error) {
	program, err := e.metadata.GetProgram(ctx, r.ProgramID)
	if err != nil {
		return nil, err
	}
	stage := program.Stage(r.StageID)
	if stage == nil {
		return nil, pkgerrors.ErrMapping.WithMessage("rule references an unknown program stage").
			WithDetail("stage_id", r.StageID)
	}

	if !stageRefMatches(r, doc) {
		return nil, nil
	}

	tc := &transformContext{doc: doc, rule: r, program: program, stage: stage, subject: subject, vars: vars, now: e.clock.Now()}
	bindings, err := e.newBindings(ctx, tc)
	if err != nil {
		return nil, err
	}

	applicable, err := e.applicabilityGate(ctx, r, bindings)
	if err != nil || !applicable {
		return nil, err
	}

	enrollment, err := e.resolver.ResolveEnrollment(ctx, program, subject, vars.Refresh)
	if err != nil {
		return nil, err
	}

	enrollmentCreated := false
	if enrollment == nil {
		enrollment, err = e.resolver.CreateEnrollment(ctx, tc, bindings)
		if err != nil || enrollment == nil {
			return nil, err
		}
		enrollmentCreated = true
	} else if !r.EnrollmentStatusApplicable(enrollment.Status) {
		return nil, nil
	}
	bindEnrollment(bindings, enrollment)

	effectiveDate := e.effectiveDate(ctx, doc, bindings)

	event, err := e.resolver.ResolveEvent(ctx, tc, enrollment, effectiveDate, bindings)
	if err != nil {
		return nil, err
	}

	// The create-once guard looks at the event as it was before this
	// transform ran.
	if vars.CreateOnly && event != nil && !oldEmpty(r, event) {
		return nil, pkgerrors.ErrConflict.WithMessage("data already exists for this rule").
			WithDetail("event_id", event.ID)
	}

	eventCreated := false
	if event == nil {
		event, err = e.resolver.CreateEvent(ctx, tc, enrollment, bindings)
		if err != nil || event == nil {
			return nil, err
		}
		eventCreated = true
	} else {
		if !r.EventStatusApplicable(event.Status) {
			return nil, nil
		}
		if !r.UpdateEnabled {
			return nil, nil
		}
	}

	if r.BeforePeriodDays != nil || r.AfterPeriodDays != nil {
		date, err := effectiveDate()
		if err != nil {
			return nil, err
		}
		if !withinEffectiveWindow(r, event.DueDate, date) {
			return nil, nil
		}
	}

	bindEvent(bindings, event)
	bindOrgUnit(bindings, event.OrgUnitID)

	updated := false
	if r.Scripts.Transform != "" {
		values, err := e.scripts.EvaluateTransform(ctx, r.Scripts.Transform, bindings)
		if err != nil {
			return nil, scriptError(err)
		}
		if e.applyEventValues(ctx, r, event, values) {
			updated = true
		}
	}
	if !eventCreated && !enrollmentCreated && !updated {
		return nil, nil
	}

	if verdict, err := e.afterGate(ctx, r, bindings); err != nil {
		return nil, err
	} else if verdict == cel.VerdictBreak {
		e.logger.DebugwCtx(ctx, "After-script discarded the outcome")
		return nil, nil
	}

	if err := validateOutcome(program, stage, enrollment, event); err != nil {
		return nil, err
	}
	if updated && !event.New {
		enrollment.MarkModified()
	}

	return &Outcome{
		Rule:       r,
		Subject:    subject,
		Enrollment: enrollment,
		Event:      event,
		Created:    eventCreated || enrollmentCreated,
		Updated:    updated,
	}, nil
}

// TransformDeletion handles a deletion notification for a previously
// transformed document. Grouping rules own the whole event; non-grouping
// rules only blank the data elements they own. A no-op clears nothing and
// returns nil.
func (e *Engine) TransformDeletion(ctx context.Context, r *rule.Rule, resourceID string) (outcome *DeleteOutcome, err error) {
	ctx = logging.WithRuleID(ctx, r.ID)
	defer func() {
		switch {
		case err != nil:
			metrics.IncDeletion("error")
		case outcome == nil:
			metrics.IncDeletion("not_applicable")
		default:
			metrics.IncDeletion("success")
		}
	}()

	if !r.Enabled || !r.DeleteEnabled {
		return nil, nil
	}

	event, err := e.store.GetEvent(ctx, resourceID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if event == nil {
		return nil, nil
	}
	event = event.Clone()

	if r.Grouping {
		event.Deleted = true
		event.Modified = true
		e.logger.InfowCtx(ctx, "Deleting event for grouping rule",
			"event_id", event.ID,
		)
		return &DeleteOutcome{Rule: r, Event: event, Deleted: true}, nil
	}

	var cleared []string
	for _, de := range r.DataElements {
		if event.ClearDataValue(de.Ref) {
			cleared = append(cleared, de.Ref)
		}
	}
	if len(cleared) == 0 {
		return nil, nil
	}
	e.logger.InfowCtx(ctx, "Cleared owned data elements",
		"event_id", event.ID,
		"cleared", cleared,
	)
	return &DeleteOutcome{Rule: r, Event: event, Cleared: cleared}, nil
}

// newBindings resolves the code mappings for the document's resource type
// and assembles the script working set.
func (e *Engine) newBindings(ctx context.Context, tc *transformContext) (cel.Bindings, error) {
	var codeMap map[string]string
	if e.codes != nil {
		m, err := e.codes.MapForSystem(ctx, string(tc.doc.Kind))
		if err != nil {
			return nil, err
		}
		codeMap = m
	}
	return tc.newBindings(codeMap), nil
}

// applicabilityGate runs the rule's applicability script. No script means
// applicable.
func (e *Engine) applicabilityGate(ctx context.Context, r *rule.Rule, bindings cel.Bindings) (bool, error) {
	if r.Scripts.Applicability == "" {
		return true, nil
	}
	applicable, err := e.scripts.EvaluateBool(ctx, r.Scripts.Applicability, bindings)
	if err != nil {
		return false, scriptError(err)
	}
	return applicable, nil
}

// afterGate runs the rule's after-script against the final working set.
func (e *Engine) afterGate(ctx context.Context, r *rule.Rule, bindings cel.Bindings) (cel.Verdict, error) {
	if r.Scripts.After == "" {
		return cel.VerdictContinue, nil
	}
	verdict, err := e.scripts.EvaluateVerdict(ctx, r.Scripts.After, bindings)
	if err != nil {
		return cel.VerdictContinue, scriptError(err)
	}
	return verdict, nil
}

// effectiveDate lazily resolves the document's clinically effective date,
// falling back through the date cascade. Gates that never need it never
// compute it.
func (e *Engine) effectiveDate(ctx context.Context, doc *fhir.Document, bindings cel.Bindings) lazyDate {
	return memoizeDate(func() (time.Time, error) {
		if t, ok := doc.EffectiveTime(); ok {
			return t, nil
		}
		return e.dates.Resolve(ctx, "", doc, bindings)
	})
}

// applyEventValues writes the transform script's output onto the event.
// Rules that declare owned data elements only write those; writes to other
// refs are logged and dropped so one rule cannot trample another's data.
func (e *Engine) applyEventValues(ctx context.Context, r *rule.Rule, event *tracker.Event, values map[string]interface{}) bool {
	changed := false
	for ref, value := range values {
		if len(r.DataElements) > 0 && !r.OwnsDataElement(ref) {
			e.logger.WarnwCtx(ctx, "Transform script wrote a data element the rule does not own",
				"data_element", ref,
			)
			continue
		}
		if event.SetDataValue(ref, valueToString(value)) {
			changed = true
		}
	}
	return changed
}

// applyEnrollmentTransform applies the recognized enrollment-level outputs
// of an enrollment rule's transform script.
func applyEnrollmentTransform(enrollment *tracker.Enrollment, values map[string]interface{}) bool {
	changed := false
	if v, ok := values["status"].(string); ok && v != "" {
		if status := tracker.EnrollmentStatus(v); status != enrollment.Status {
			enrollment.Status = status
			changed = true
		}
	}
	if v, ok := values["incidentDate"].(string); ok && v != "" {
		if t, err := parseScriptTime(v); err == nil && !t.Equal(enrollment.IncidentDate) {
			enrollment.IncidentDate = t
			changed = true
		}
	}
	if lat, ok := toFloat(values["latitude"]); ok {
		if lng, ok := toFloat(values["longitude"]); ok {
			c := tracker.Coordinate{Latitude: lat, Longitude: lng}
			if enrollment.Coordinate == nil || *enrollment.Coordinate != c {
				enrollment.Coordinate = &c
				changed = true
			}
		}
	}
	return changed
}

// valueToString renders a script output as a tracker data value.
func valueToString(v interface{}) string {
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	case time.Time:
		return n.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return ""
	}
}
