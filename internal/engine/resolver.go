package engine

import (
	"context"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/lock"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/registry"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
)

// Resolver locates or creates the tracker resources a rule targets. All
// enrollment reads happen under the subject lock so two concurrent
// documents for one subject cannot both decide to create.
type Resolver struct {
	store    registry.Client
	locks    lock.Manager
	scripts  ScriptEvaluator
	subjects SubjectResolver
	dates    *DateResolver
	logger   logger.Logger
}

func NewResolver(store registry.Client, locks lock.Manager, scripts ScriptEvaluator, subjects SubjectResolver, dates *DateResolver, log logger.Logger) *Resolver {
	return &Resolver{
		store:    store,
		locks:    locks,
		scripts:  scripts,
		subjects: subjects,
		dates:    dates,
		logger:   log,
	}
}

// ResolveTrackedSubject delegates identity matching upstream. Nil means no
// match; the orchestrator decides whether that is fatal for the rule.
func (r *Resolver) ResolveTrackedSubject(ctx context.Context, doc *fhir.Document) (*tracker.TrackedSubject, error) {
	return r.subjects.ResolveSubject(ctx, doc)
}

// ResolveEnrollment fetches the authoritative ACTIVE enrollment for the
// (program, subject) pair under the subject lock and returns a defensive
// deep copy. Nil means none exists.
func (r *Resolver) ResolveEnrollment(ctx context.Context, program *tracker.Program, subject *tracker.TrackedSubject, forceRefresh bool) (*tracker.Enrollment, error) {
	if err := r.locks.Lock(ctx, lock.SubjectKey(subject.ID)); err != nil {
		return nil, err
	}

	enrollment, err := r.store.FindActiveEnrollment(ctx, program.ID, subject.ID, forceRefresh)
	if err != nil {
		return nil, err
	}
	if enrollment == nil {
		return nil, nil
	}
	return enrollment.Clone(), nil
}

// ResolveEvent applies the most-appropriate-event heuristic and the
// before-script gate. Nil means no existing event should be updated; the
// orchestrator then tries the creation path.
func (r *Resolver) ResolveEvent(ctx context.Context, tc *transformContext, enrollment *tracker.Enrollment, effectiveDate lazyDate, bindings cel.Bindings) (*tracker.Event, error) {
	candidates := enrollment.EventsForStage(tc.stage.ID)
	if len(candidates) == 0 {
		return nil, nil
	}

	selected, err := r.selectEvent(candidates, effectiveDate)
	if err != nil {
		return nil, err
	}

	if script := tc.rule.Scripts.Before; script != "" {
		bindEvent(bindings, selected)
		verdict, err := r.scripts.EvaluateVerdict(ctx, script, bindings)
		if err != nil {
			return nil, scriptError(err)
		}
		switch verdict {
		case cel.VerdictBreak:
			r.logger.DebugwCtx(ctx, "Before-script discarded selected event",
				"event_id", selected.ID,
			)
			return nil, nil
		case cel.VerdictNewEvent:
			// NEW_EVENT is only honored for repeatable stages; on a
			// non-repeatable stage the selected event stays, keeping the
			// stage free of duplicates.
			if tc.stage.Repeatable {
				r.logger.DebugwCtx(ctx, "Before-script requested a new event",
					"event_id", selected.ID,
				)
				return nil, nil
			}
		}
	}

	return selected, nil
}

// selectEvent picks the candidate a document should update. One candidate
// wins outright. Otherwise the non-SKIPPED event closest (by absolute
// calendar days) to the effective date wins, ties resolved by the canonical
// ordering the candidates already carry. If no candidate qualifies, the
// first one stands in.
func (r *Resolver) selectEvent(candidates []*tracker.Event, effectiveDate lazyDate) (*tracker.Event, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}

	var (
		best     *tracker.Event
		bestDist int
	)
	for _, candidate := range candidates {
		if candidate.Status == tracker.EventSkipped {
			continue
		}
		date, err := effectiveDate()
		if err != nil {
			return nil, err
		}
		dist := absDayDistance(candidate.EventDate, date)
		if best == nil || dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	if best == nil {
		return candidates[0], nil
	}
	return best, nil
}

// CreateEnrollment constructs a new in-memory enrollment when every creation
// gate agrees. Nil without error means creation is not applicable.
func (r *Resolver) CreateEnrollment(ctx context.Context, tc *transformContext, bindings cel.Bindings) (*tracker.Enrollment, error) {
	if !tc.program.Registration {
		return nil, nil
	}
	if !tc.rule.CreateEnabled || !tc.rule.EnrollmentCreateEnabled {
		return nil, nil
	}

	if script := tc.rule.Scripts.EnrollmentApplicability; script != "" {
		applicable, err := r.scripts.EvaluateBool(ctx, script, bindings)
		if err != nil {
			return nil, scriptError(err)
		}
		if !applicable {
			return nil, nil
		}
	}

	enrollmentDate, err := r.dates.Resolve(ctx, tc.rule.Scripts.EnrollmentDate, tc.doc, bindings)
	if err != nil {
		return nil, err
	}
	if violatesFuturePolicy(enrollmentDate, tc.program.DisallowFutureEnrollmentDate, tc.now) {
		r.logger.DebugwCtx(ctx, "Enrollment date is in the future, skipping creation",
			"enrollment_date", enrollmentDate,
		)
		return nil, nil
	}

	incidentDate := enrollmentDate
	if violatesFuturePolicy(incidentDate, tc.program.DisallowFutureIncidentDate, tc.now) {
		return nil, nil
	}

	orgUnitID, err := r.resolveOrgUnit(ctx, tc, bindings)
	if err != nil {
		return nil, err
	}
	if orgUnitID == "" {
		orgUnitID = tc.subject.OrgUnitID
	}
	if orgUnitID == "" {
		return nil, nil
	}

	enrollment := &tracker.Enrollment{
		ProgramID:      tc.program.ID,
		SubjectID:      tc.subject.ID,
		Status:         tracker.EnrollmentActive,
		EnrollmentDate: enrollmentDate,
		IncidentDate:   incidentDate,
		OrgUnitID:      orgUnitID,
		New:            true,
	}

	if script := tc.rule.Scripts.EnrollmentTransform; script != "" {
		bindEnrollment(bindings, enrollment)
		values, err := r.scripts.EvaluateTransform(ctx, script, bindings)
		if err != nil {
			return nil, scriptError(err)
		}
		applyEnrollmentValues(enrollment, values)
	}

	return enrollment, nil
}

// CreateEvent constructs a new in-memory event. Creation requires the rule
// and stage flags to agree and a resolvable org unit; a missing unit means
// not applicable, never an error.
func (r *Resolver) CreateEvent(ctx context.Context, tc *transformContext, enrollment *tracker.Enrollment, bindings cel.Bindings) (*tracker.Event, error) {
	if !tc.rule.CreateEnabled || !tc.rule.EventCreateEnabled || !tc.stage.CreationEnabled {
		return nil, nil
	}

	orgUnitID, err := r.resolveOrgUnit(ctx, tc, bindings)
	if err != nil {
		return nil, err
	}
	if orgUnitID == "" {
		orgUnitID = enrollment.OrgUnitID
	}
	if orgUnitID == "" {
		r.logger.DebugwCtx(ctx, "No resolvable org unit, skipping event creation")
		return nil, nil
	}
	bindOrgUnit(bindings, orgUnitID)

	eventDate, err := r.dates.EventDate(ctx, tc.rule.Scripts.EventDate, tc.stage, enrollment.EnrollmentDate, tc.doc, bindings)
	if err != nil {
		return nil, err
	}

	status := tc.stage.DefaultStatus
	if status == "" {
		status = tracker.EventActive
	}

	event := &tracker.Event{
		EnrollmentID:   enrollment.ID,
		ProgramID:      tc.program.ID,
		ProgramStageID: tc.stage.ID,
		Status:         status,
		EventDate:      eventDate,
		DueDate:        DueDate(enrollment.IncidentDate, eventDate, tc.stage.MinDaysFromStart),
		OrgUnitID:      orgUnitID,
		New:            true,
	}

	enrollment.AddEvent(event)
	return event, nil
}

// resolveOrgUnit tries the rule's org-unit script first, then the document's
// author/submitter reference via the kind-specific accessor.
func (r *Resolver) resolveOrgUnit(ctx context.Context, tc *transformContext, bindings cel.Bindings) (string, error) {
	if script := tc.rule.Scripts.OrgUnit; script != "" {
		ref, err := r.scripts.EvaluateString(ctx, script, bindings)
		if err != nil {
			return "", scriptError(err)
		}
		if ref != "" {
			return r.store.FindOrgUnit(ctx, ref)
		}
	}

	accessor := fhir.AuthorAccessorFor(tc.doc.Kind)
	if accessor == nil {
		return "", nil
	}
	ref, ok := accessor.AuthorRef(tc.doc)
	if !ok {
		return "", nil
	}
	return r.store.FindOrgUnit(ctx, ref)
}

// applyEnrollmentValues applies the creation script's recognized outputs.
// Unknown keys are ignored rather than failing creation.
func applyEnrollmentValues(enrollment *tracker.Enrollment, values map[string]interface{}) {
	if values == nil {
		return
	}
	if v, ok := values["incidentDate"].(string); ok && v != "" {
		if t, err := parseScriptTime(v); err == nil {
			enrollment.IncidentDate = t
		}
	}
	if lat, ok := toFloat(values["latitude"]); ok {
		if lng, ok := toFloat(values["longitude"]); ok {
			enrollment.Coordinate = &tracker.Coordinate{Latitude: lat, Longitude: lng}
		}
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
