package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trackerbridge/internal/fhir"
	"trackerbridge/internal/lock"
	"trackerbridge/internal/logger"
	"trackerbridge/internal/metadata"
	"trackerbridge/internal/rule"
	"trackerbridge/internal/tracker"
	"trackerbridge/pkg/cel"
)

// fakeScripts resolves scripts by exact source text, so tests register the
// result they want per script instead of standing up a CEL environment.
type fakeScripts struct {
	bools      map[string]bool
	dates      map[string]time.Time
	strings    map[string]string
	verdicts   map[string]cel.Verdict
	transforms map[string]map[string]interface{}
	errs       map[string]error
}

func newFakeScripts() *fakeScripts {
	return &fakeScripts{
		bools:      make(map[string]bool),
		dates:      make(map[string]time.Time),
		strings:    make(map[string]string),
		verdicts:   make(map[string]cel.Verdict),
		transforms: make(map[string]map[string]interface{}),
		errs:       make(map[string]error),
	}
}

func (f *fakeScripts) EvaluateBool(_ context.Context, script string, _ cel.Bindings) (bool, error) {
	if err := f.errs[script]; err != nil {
		return false, err
	}
	return f.bools[script], nil
}

func (f *fakeScripts) EvaluateDate(_ context.Context, script string, _ cel.Bindings) (time.Time, bool, error) {
	if err := f.errs[script]; err != nil {
		return time.Time{}, false, err
	}
	t, ok := f.dates[script]
	return t, ok, nil
}

func (f *fakeScripts) EvaluateString(_ context.Context, script string, _ cel.Bindings) (string, error) {
	if err := f.errs[script]; err != nil {
		return "", err
	}
	return f.strings[script], nil
}

func (f *fakeScripts) EvaluateVerdict(_ context.Context, script string, _ cel.Bindings) (cel.Verdict, error) {
	if err := f.errs[script]; err != nil {
		return cel.VerdictContinue, err
	}
	if v, ok := f.verdicts[script]; ok {
		return v, nil
	}
	return cel.VerdictContinue, nil
}

func (f *fakeScripts) EvaluateTransform(_ context.Context, script string, _ cel.Bindings) (map[string]interface{}, error) {
	if err := f.errs[script]; err != nil {
		return nil, err
	}
	return f.transforms[script], nil
}

// fakeStore is an in-memory registry.Client.
type fakeStore struct {
	enrollment *tracker.Enrollment
	events     map[string]*tracker.Event
	orgUnits   map[string]string

	lastRefresh bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   make(map[string]*tracker.Event),
		orgUnits: make(map[string]string),
	}
}

func (f *fakeStore) FindActiveEnrollment(_ context.Context, _, _ string, forceRefresh bool) (*tracker.Enrollment, error) {
	f.lastRefresh = forceRefresh
	return f.enrollment, nil
}

func (f *fakeStore) GetEnrollment(_ context.Context, _ string) (*tracker.Enrollment, error) {
	return f.enrollment, nil
}

func (f *fakeStore) GetEvent(_ context.Context, id string) (*tracker.Event, error) {
	return f.events[id], nil
}

func (f *fakeStore) FindTrackedSubject(_ context.Context, _ string) (*tracker.TrackedSubject, error) {
	return nil, nil
}

func (f *fakeStore) FindOrgUnit(_ context.Context, ref string) (string, error) {
	return f.orgUnits[ref], nil
}

type fakeSubjects struct {
	subject *tracker.TrackedSubject
	err     error
}

func (f *fakeSubjects) ResolveSubject(context.Context, *fhir.Document) (*tracker.TrackedSubject, error) {
	return f.subject, f.err
}

type fakeMetaRepo struct {
	program *tracker.Program
}

func (f *fakeMetaRepo) GetProgram(context.Context, string) (*tracker.Program, error) {
	return f.program, nil
}

func (f *fakeMetaRepo) GetStage(context.Context, string) (*tracker.ProgramStage, error) {
	if len(f.program.Stages) == 0 {
		return nil, nil
	}
	return &f.program.Stages[0], nil
}

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// testHarness wires the engine against fakes. Every piece is reachable for
// per-test adjustment before the transform runs.
type testHarness struct {
	scripts  *fakeScripts
	store    *fakeStore
	subjects *fakeSubjects
	program  *tracker.Program
	engine   *Engine
	resolver *Resolver
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	program := &tracker.Program{
		ID:           "prog-1",
		Name:         "Test Program",
		Registration: true,
		Stages: []tracker.ProgramStage{{
			ID:               "stage-1",
			ProgramID:        "prog-1",
			Name:             "Visit",
			Repeatable:       true,
			CreationEnabled:  true,
			MinDaysFromStart: 0,
		}},
	}

	log := logger.NopLogger()
	scripts := newFakeScripts()
	store := newFakeStore()
	store.orgUnits["Organization/ou-1"] = "ou-1"
	subjects := &fakeSubjects{subject: &tracker.TrackedSubject{ID: "subj-1", OrgUnitID: "ou-subj"}}

	clock := fixedClock{now: testNow}
	dates := NewDateResolver(scripts, clock, log)
	resolver := NewResolver(store, lock.NewMemoryManager(), scripts, subjects, dates, log)
	meta := metadata.NewService(&fakeMetaRepo{program: program}, log)
	eng := NewEngine(meta, resolver, scripts, nil, dates, store, clock, log)

	return &testHarness{
		scripts:  scripts,
		store:    store,
		subjects: subjects,
		program:  program,
		engine:   eng,
		resolver: resolver,
	}
}

func (h *testHarness) stage() *tracker.ProgramStage {
	return &h.program.Stages[0]
}

func lockScope(t *testing.T) context.Context {
	t.Helper()
	ctx, lc := lock.NewContext(context.Background())
	t.Cleanup(func() {
		require.NoError(t, lc.Close(context.Background()))
	})
	return ctx
}

func stageRule() *rule.Rule {
	return &rule.Rule{
		ID:                      "rule-1",
		Name:                    "observation to visit",
		Kind:                    rule.KindProgramStage,
		ResourceType:            "Observation",
		ProgramID:               "prog-1",
		StageID:                 "stage-1",
		Enabled:                 true,
		ImportEnabled:           true,
		CreateEnabled:           true,
		UpdateEnabled:           true,
		DeleteEnabled:           true,
		EnrollmentCreateEnabled: true,
		EventCreateEnabled:      true,
	}
}

func observationDoc() *fhir.Document {
	return &fhir.Document{
		ID:   "doc-1",
		Kind: fhir.KindObservation,
		Payload: map[string]interface{}{
			"status":            "final",
			"effectiveDateTime": "2024-06-10T09:00:00Z",
			"subject":           map[string]interface{}{"reference": "Patient/subj-1"},
			"performer": []interface{}{
				map[string]interface{}{"reference": "Organization/ou-1"},
			},
		},
	}
}

func activeEnrollment() *tracker.Enrollment {
	return &tracker.Enrollment{
		ID:             "en-1",
		ProgramID:      "prog-1",
		SubjectID:      "subj-1",
		Status:         tracker.EnrollmentActive,
		EnrollmentDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		IncidentDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		OrgUnitID:      "ou-1",
	}
}

func stageEvent(id string, date time.Time) *tracker.Event {
	return &tracker.Event{
		ID:             id,
		EnrollmentID:   "en-1",
		ProgramID:      "prog-1",
		ProgramStageID: "stage-1",
		Status:         tracker.EventActive,
		EventDate:      date,
		DueDate:        date,
		OrgUnitID:      "ou-1",
	}
}
