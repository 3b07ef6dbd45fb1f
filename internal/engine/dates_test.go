package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
	pkgerrors "trackerbridge/pkg/errors"
)

func newTestDateResolver(scripts *fakeScripts) *DateResolver {
	return NewDateResolver(scripts, fixedClock{now: testNow}, logger.NopLogger())
}

func TestDateResolver_Resolve_ScriptWins(t *testing.T) {
	scripts := newFakeScripts()
	scripted := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	scripts.dates["dateScript"] = scripted
	r := newTestDateResolver(scripts)

	lastUpdated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := &fhir.Document{LastUpdated: &lastUpdated}

	resolved, err := r.Resolve(context.Background(), "dateScript", doc, cel.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, scripted, resolved)
}

func TestDateResolver_Resolve_FallsBackToLastUpdated(t *testing.T) {
	r := newTestDateResolver(newFakeScripts())

	lastUpdated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := &fhir.Document{LastUpdated: &lastUpdated}

	resolved, err := r.Resolve(context.Background(), "dateScript", doc, cel.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, lastUpdated, resolved)
}

func TestDateResolver_Resolve_FallsBackToNow(t *testing.T) {
	r := newTestDateResolver(newFakeScripts())

	resolved, err := r.Resolve(context.Background(), "", &fhir.Document{}, cel.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, testNow, resolved)
}

func TestDateResolver_Resolve_ScriptErrorAborts(t *testing.T) {
	scripts := newFakeScripts()
	scripts.errs["dateScript"] = &cel.CompileError{Err: assert.AnError}
	r := newTestDateResolver(scripts)

	lastUpdated := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	doc := &fhir.Document{LastUpdated: &lastUpdated}

	_, err := r.Resolve(context.Background(), "dateScript", doc, cel.Bindings{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsMapping(err))
}

func TestDateResolver_EventDate_GeneratedByEnrollmentDate(t *testing.T) {
	scripts := newFakeScripts()
	scripts.dates["dateScript"] = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	r := newTestDateResolver(scripts)

	stage := &tracker.ProgramStage{GeneratedByEnrollmentDate: true, MinDaysFromStart: 7}
	enrollmentDate := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	resolved, err := r.EventDate(context.Background(), "dateScript", stage, enrollmentDate, &fhir.Document{}, cel.Bindings{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), resolved)
}

func TestDueDate(t *testing.T) {
	incident := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	early := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC), DueDate(incident, early, 7))

	late := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, late, DueDate(incident, late, 7))
}

func TestViolatesFuturePolicy(t *testing.T) {
	future := testNow.Add(24 * time.Hour)
	past := testNow.Add(-24 * time.Hour)

	assert.True(t, violatesFuturePolicy(future, true, testNow))
	assert.False(t, violatesFuturePolicy(past, true, testNow))
	assert.False(t, violatesFuturePolicy(future, false, testNow))
	assert.False(t, violatesFuturePolicy(testNow, true, testNow))
}

func TestAbsDayDistance_IgnoresTimeOfDay(t *testing.T) {
	a := time.Date(2024, 6, 10, 23, 59, 0, 0, time.UTC)
	b := time.Date(2024, 6, 13, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, 3, absDayDistance(a, b))
	assert.Equal(t, 3, absDayDistance(b, a))
	assert.Equal(t, 0, absDayDistance(a, a))
}

func TestParseScriptTime(t *testing.T) {
	full, err := parseScriptTime("2024-06-10T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC), full)

	day, err := parseScriptTime("2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), day)

	_, err = parseScriptTime("nope")
	assert.Error(t, err)
}

func TestWithinEffectiveWindow(t *testing.T) {
	before, after := 5, 10
	r := stageRule()
	r.BeforePeriodDays = &before
	r.AfterPeriodDays = &after

	due := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	assert.True(t, withinEffectiveWindow(r, due, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.True(t, withinEffectiveWindow(r, due, time.Date(2024, 6, 25, 0, 0, 0, 0, time.UTC)))
	assert.False(t, withinEffectiveWindow(r, due, time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)))
	assert.False(t, withinEffectiveWindow(r, due, time.Date(2024, 6, 26, 0, 0, 0, 0, time.UTC)))

	unbounded := stageRule()
	assert.True(t, withinEffectiveWindow(unbounded, due, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestOldEmpty(t *testing.T) {
	r := stageRule()
	r.DataElements = []rule.DataElementRef{
		{Ref: "de_required", Required: true},
		{Ref: "de_optional"},
	}

	event := stageEvent("ev-1", testNow)

	assert.True(t, oldEmpty(r, event))

	event.SetDataValue("de_required", "value")
	assert.False(t, oldEmpty(r, event))

	noRequired := stageRule()
	assert.False(t, oldEmpty(noRequired, event))
	assert.True(t, oldEmpty(noRequired, nil))
}
