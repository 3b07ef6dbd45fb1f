package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackerbridge/internal/tracker"
	pkgerrors "trackerbridge/pkg/errors"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator()
	require.NoError(t, err)
	return v
}

func TestValidator_ValidateCreate_RequiredFields(t *testing.T) {
	v := newTestValidator(t)

	cases := []struct {
		name string
		req  CreateRuleRequest
	}{
		{"missing name", CreateRuleRequest{Kind: KindSubject, ResourceType: "Patient"}},
		{"missing resource type", CreateRuleRequest{Name: "r", Kind: KindSubject}},
		{"invalid kind", CreateRuleRequest{Name: "r", Kind: Kind("bogus"), ResourceType: "Patient"}},
		{"enrollment without program", CreateRuleRequest{Name: "r", Kind: KindEnrollment, ResourceType: "Patient"}},
		{"stage without program", CreateRuleRequest{Name: "r", Kind: KindProgramStage, ResourceType: "Patient", StageID: "s"}},
		{"stage without stage id", CreateRuleRequest{Name: "r", Kind: KindProgramStage, ResourceType: "Patient", ProgramID: "p"}},
		{"empty data element ref", CreateRuleRequest{Name: "r", Kind: KindSubject, ResourceType: "Patient", DataElements: []DataElementRef{{Ref: ""}}}},
	}

	for _, tc := range cases {
		err := v.ValidateCreate(tc.req)
		require.Error(t, err, tc.name)
		assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation), tc.name)
	}
}

func TestValidator_ValidateCreate_StatusFiltersAndWindow(t *testing.T) {
	v := newTestValidator(t)
	base := func() CreateRuleRequest {
		return CreateRuleRequest{Name: "r", Kind: KindSubject, ResourceType: "Patient"}
	}

	req := base()
	req.ApplicableEnrollmentStatuses = []tracker.EnrollmentStatus{"PAUSED"}
	err := v.ValidateCreate(req)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))

	req = base()
	req.ApplicableEventStatuses = []tracker.EventStatus{"DONE"}
	err = v.ValidateCreate(req)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))

	negative := -1
	req = base()
	req.BeforePeriodDays = &negative
	err = v.ValidateCreate(req)
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))

	days := 3
	req = base()
	req.ApplicableEnrollmentStatuses = []tracker.EnrollmentStatus{tracker.EnrollmentCompleted}
	req.ApplicableEventStatuses = []tracker.EventStatus{tracker.EventActive, tracker.EventOverdue}
	req.AfterPeriodDays = &days
	assert.NoError(t, v.ValidateCreate(req))
}

func TestValidator_ValidateUpdate_StatusFilters(t *testing.T) {
	v := newTestValidator(t)

	bad := []tracker.EventStatus{"DONE"}
	err := v.ValidateUpdate(UpdateRuleRequest{ApplicableEventStatuses: &bad})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))

	good := []tracker.EnrollmentStatus{tracker.EnrollmentCancelled}
	assert.NoError(t, v.ValidateUpdate(UpdateRuleRequest{ApplicableEnrollmentStatuses: &good}))
}

func TestValidator_ValidateCreate_Valid(t *testing.T) {
	v := newTestValidator(t)

	err := v.ValidateCreate(CreateRuleRequest{
		Name:         "observation rule",
		Kind:         KindProgramStage,
		ResourceType: "Observation",
		ProgramID:    "prog-1",
		StageID:      "stage-1",
		DataElements: []DataElementRef{{Ref: "de_weight", Required: true}},
		Scripts: Scripts{
			Applicability: `document.status == "final"`,
			Transform:     `{"de_weight": document.value}`,
		},
	})
	assert.NoError(t, err)
}

func TestValidator_ValidateCreate_BrokenScript(t *testing.T) {
	v := newTestValidator(t)

	err := v.ValidateCreate(CreateRuleRequest{
		Name:         "broken",
		Kind:         KindSubject,
		ResourceType: "Patient",
		Scripts:      Scripts{Transform: `document.status ==`},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))
}

func TestValidator_ValidateUpdate(t *testing.T) {
	v := newTestValidator(t)

	empty := ""
	err := v.ValidateUpdate(UpdateRuleRequest{Name: &empty})
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.ErrValidation))

	badScripts := Scripts{Before: `(((`}
	err = v.ValidateUpdate(UpdateRuleRequest{Scripts: &badScripts})
	require.Error(t, err)

	name := "valid"
	assert.NoError(t, v.ValidateUpdate(UpdateRuleRequest{Name: &name}))
	assert.NoError(t, v.ValidateUpdate(UpdateRuleRequest{}))
}
