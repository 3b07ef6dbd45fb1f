package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
	pkgerrors "trackerbridge/pkg/errors"
)

func (h *testHarness) transformCtx() *transformContext {
	return &transformContext{
		doc:     observationDoc(),
		rule:    stageRule(),
		program: h.program,
		stage:   h.stage(),
		subject: h.subjects.subject,
		now:     testNow,
	}
}

func TestResolver_ResolveEnrollment_RequiresLockScope(t *testing.T) {
	h := newHarness(t)
	h.store.enrollment = activeEnrollment()

	_, err := h.resolver.ResolveEnrollment(context.Background(), h.program, h.subjects.subject, false)

	require.Error(t, err)
	assert.True(t, pkgerrors.IsFatal(err))
}

func TestResolver_ResolveEnrollment_ReturnsClone(t *testing.T) {
	h := newHarness(t)
	stored := activeEnrollment()
	h.store.enrollment = stored

	resolved, err := h.resolver.ResolveEnrollment(lockScope(t), h.program, h.subjects.subject, false)
	require.NoError(t, err)
	require.NotNil(t, resolved)

	resolved.Status = tracker.EnrollmentCompleted
	assert.Equal(t, tracker.EnrollmentActive, stored.Status)
}

func TestResolver_ResolveEnrollment_NoneExists(t *testing.T) {
	h := newHarness(t)

	resolved, err := h.resolver.ResolveEnrollment(lockScope(t), h.program, h.subjects.subject, false)
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolver_ResolveEnrollment_ForceRefreshPropagates(t *testing.T) {
	h := newHarness(t)
	h.store.enrollment = activeEnrollment()

	_, err := h.resolver.ResolveEnrollment(lockScope(t), h.program, h.subjects.subject, true)
	require.NoError(t, err)
	assert.True(t, h.store.lastRefresh)
}

func TestResolver_SelectEvent_SingleCandidateWins(t *testing.T) {
	h := newHarness(t)
	// A lone SKIPPED candidate still wins outright.
	only := stageEvent("ev-1", testNow)
	only.Status = tracker.EventSkipped

	selected, err := h.resolver.selectEvent([]*tracker.Event{only}, fixedDate(testNow))
	require.NoError(t, err)
	assert.Equal(t, "ev-1", selected.ID)
}

func TestResolver_SelectEvent_ClosestByCalendarDays(t *testing.T) {
	h := newHarness(t)
	effective := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	candidates := []*tracker.Event{
		stageEvent("three-days", time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC)),
		stageEvent("one-day", time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC)),
		stageEvent("two-days", time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)),
	}

	selected, err := h.resolver.selectEvent(candidates, fixedDate(effective))
	require.NoError(t, err)
	assert.Equal(t, "one-day", selected.ID)
}

func TestResolver_SelectEvent_SkippedExcluded(t *testing.T) {
	h := newHarness(t)
	closest := stageEvent("skipped", testNow)
	closest.Status = tracker.EventSkipped
	candidates := []*tracker.Event{
		closest,
		stageEvent("active", testNow.AddDate(0, 0, -10)),
	}

	selected, err := h.resolver.selectEvent(candidates, fixedDate(testNow))
	require.NoError(t, err)
	assert.Equal(t, "active", selected.ID)
}

func TestResolver_SelectEvent_AllSkippedFallsBackToFirst(t *testing.T) {
	h := newHarness(t)
	first := stageEvent("first", testNow)
	first.Status = tracker.EventSkipped
	second := stageEvent("second", testNow)
	second.Status = tracker.EventSkipped

	selected, err := h.resolver.selectEvent([]*tracker.Event{first, second}, fixedDate(testNow))
	require.NoError(t, err)
	assert.Equal(t, "first", selected.ID)
}

func TestResolver_SelectEvent_TieKeepsCanonicalOrder(t *testing.T) {
	h := newHarness(t)
	// Equidistant candidates: the earlier one in canonical order wins
	// because a tie never displaces the current best.
	candidates := []*tracker.Event{
		stageEvent("canonical-first", testNow.AddDate(0, 0, -2)),
		stageEvent("canonical-second", testNow.AddDate(0, 0, 2)),
	}

	selected, err := h.resolver.selectEvent(candidates, fixedDate(testNow))
	require.NoError(t, err)
	assert.Equal(t, "canonical-first", selected.ID)
}

func TestResolver_ResolveEvent_NoCandidates(t *testing.T) {
	h := newHarness(t)
	tc := h.transformCtx()

	event, err := h.resolver.ResolveEvent(context.Background(), tc, activeEnrollment(), fixedDate(testNow), cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestResolver_ResolveEvent_BeforeScriptBreakDiscards(t *testing.T) {
	h := newHarness(t)
	h.scripts.verdicts["beforeScript"] = cel.VerdictBreak

	tc := h.transformCtx()
	tc.rule.Scripts.Before = "beforeScript"
	tc.stage.Repeatable = false

	enrollment := activeEnrollment()
	enrollment.AddEvent(stageEvent("ev-1", testNow))

	event, err := h.resolver.ResolveEvent(context.Background(), tc, enrollment, fixedDate(testNow), cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestResolver_ResolveEvent_NewEventOnRepeatableStage(t *testing.T) {
	h := newHarness(t)
	h.scripts.verdicts["beforeScript"] = cel.VerdictNewEvent

	tc := h.transformCtx()
	tc.rule.Scripts.Before = "beforeScript"
	tc.stage.Repeatable = true

	enrollment := activeEnrollment()
	enrollment.AddEvent(stageEvent("ev-1", testNow))

	event, err := h.resolver.ResolveEvent(context.Background(), tc, enrollment, fixedDate(testNow), cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestResolver_ResolveEvent_NewEventIgnoredOnNonRepeatableStage(t *testing.T) {
	h := newHarness(t)
	h.scripts.verdicts["beforeScript"] = cel.VerdictNewEvent

	tc := h.transformCtx()
	tc.rule.Scripts.Before = "beforeScript"
	tc.stage.Repeatable = false

	enrollment := activeEnrollment()
	enrollment.AddEvent(stageEvent("ev-1", testNow))

	event, err := h.resolver.ResolveEvent(context.Background(), tc, enrollment, fixedDate(testNow), cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "ev-1", event.ID)
}

func TestResolver_CreateEnrollment_RequiresRegistration(t *testing.T) {
	h := newHarness(t)
	h.program.Registration = false
	tc := h.transformCtx()

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, enrollment)
}

func TestResolver_CreateEnrollment_RequiresCreateFlags(t *testing.T) {
	h := newHarness(t)
	tc := h.transformCtx()
	tc.rule.EnrollmentCreateEnabled = false

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, enrollment)
}

func TestResolver_CreateEnrollment_ApplicabilityScriptGates(t *testing.T) {
	h := newHarness(t)
	h.scripts.bools["enrollIf"] = false
	tc := h.transformCtx()
	tc.rule.Scripts.EnrollmentApplicability = "enrollIf"

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, enrollment)
}

func TestResolver_CreateEnrollment_FutureDateNotApplicable(t *testing.T) {
	h := newHarness(t)
	h.program.DisallowFutureEnrollmentDate = true
	h.scripts.dates["enrollDate"] = testNow.AddDate(0, 0, 1)

	tc := h.transformCtx()
	tc.rule.Scripts.EnrollmentDate = "enrollDate"

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, enrollment)
}

func TestResolver_CreateEnrollment_OrgUnitFromDocumentAuthor(t *testing.T) {
	h := newHarness(t)
	h.scripts.dates["enrollDate"] = time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC)

	tc := h.transformCtx()
	tc.rule.Scripts.EnrollmentDate = "enrollDate"

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	assert.Equal(t, "ou-1", enrollment.OrgUnitID)
	assert.Equal(t, "prog-1", enrollment.ProgramID)
	assert.Equal(t, "subj-1", enrollment.SubjectID)
	assert.Equal(t, tracker.EnrollmentActive, enrollment.Status)
	assert.Equal(t, time.Date(2024, 6, 5, 0, 0, 0, 0, time.UTC), enrollment.EnrollmentDate)
	assert.Equal(t, enrollment.EnrollmentDate, enrollment.IncidentDate)
	assert.True(t, enrollment.New)
}

func TestResolver_CreateEnrollment_SubjectOrgUnitFallback(t *testing.T) {
	h := newHarness(t)
	tc := h.transformCtx()
	tc.doc.Payload["performer"] = nil

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.Equal(t, "ou-subj", enrollment.OrgUnitID)
}

func TestResolver_CreateEnrollment_NoOrgUnitNotApplicable(t *testing.T) {
	h := newHarness(t)
	h.subjects.subject.OrgUnitID = ""
	tc := h.transformCtx()
	tc.doc.Payload["performer"] = nil

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, enrollment)
}

func TestResolver_CreateEnrollment_TransformScriptApplies(t *testing.T) {
	h := newHarness(t)
	h.scripts.transforms["enrollTransform"] = map[string]interface{}{
		"incidentDate": "2024-05-20",
		"latitude":     12.5,
		"longitude":    -3.25,
	}
	tc := h.transformCtx()
	tc.rule.Scripts.EnrollmentTransform = "enrollTransform"

	enrollment, err := h.resolver.CreateEnrollment(context.Background(), tc, cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, enrollment)

	assert.Equal(t, time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC), enrollment.IncidentDate)
	require.NotNil(t, enrollment.Coordinate)
	assert.Equal(t, 12.5, enrollment.Coordinate.Latitude)
	assert.Equal(t, -3.25, enrollment.Coordinate.Longitude)
}

func TestResolver_CreateEvent_RequiresStageCreationEnabled(t *testing.T) {
	h := newHarness(t)
	h.stage().CreationEnabled = false
	tc := h.transformCtx()

	event, err := h.resolver.CreateEvent(context.Background(), tc, activeEnrollment(), cel.Bindings{})
	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestResolver_CreateEvent_DueDateAndDefaults(t *testing.T) {
	h := newHarness(t)
	h.stage().MinDaysFromStart = 7
	h.scripts.dates["eventDate"] = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	tc := h.transformCtx()
	tc.rule.Scripts.EventDate = "eventDate"
	enrollment := activeEnrollment()

	event, err := h.resolver.CreateEvent(context.Background(), tc, enrollment, cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, event)

	assert.Equal(t, tracker.EventActive, event.Status)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), event.EventDate)
	// incident 2024-06-01 + 7 days is after the event date.
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), event.DueDate)
	assert.Equal(t, "ou-1", event.OrgUnitID)
	assert.True(t, event.New)
	assert.Len(t, enrollment.Events, 1)
	assert.True(t, enrollment.Modified)
}

func TestResolver_CreateEvent_StageDefaultStatus(t *testing.T) {
	h := newHarness(t)
	h.stage().DefaultStatus = tracker.EventSchedule
	tc := h.transformCtx()

	event, err := h.resolver.CreateEvent(context.Background(), tc, activeEnrollment(), cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, tracker.EventSchedule, event.Status)
}

func TestResolver_CreateEvent_EnrollmentOrgUnitFallback(t *testing.T) {
	h := newHarness(t)
	tc := h.transformCtx()
	tc.doc.Payload["performer"] = nil

	event, err := h.resolver.CreateEvent(context.Background(), tc, activeEnrollment(), cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "ou-1", event.OrgUnitID)
}

func TestResolver_CreateEvent_OrgUnitScriptWins(t *testing.T) {
	h := newHarness(t)
	h.scripts.strings["orgUnitScript"] = "Organization/ou-other"
	h.store.orgUnits["Organization/ou-other"] = "ou-other"

	tc := h.transformCtx()
	tc.rule.Scripts.OrgUnit = "orgUnitScript"

	event, err := h.resolver.CreateEvent(context.Background(), tc, activeEnrollment(), cel.Bindings{})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "ou-other", event.OrgUnitID)
}
