package cel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	e, err := NewEvaluator()
	require.NoError(t, err)
	return e
}

func testBindings() Bindings {
	return Bindings{
		"document":     map[string]interface{}{"status": "final", "value": 42.0},
		"subject":      map[string]interface{}{"id": "subj-1"},
		"enrollment":   map[string]interface{}{},
		"event":        map[string]interface{}{},
		"programStage": map[string]interface{}{"repeatable": true},
		"orgUnit":      "ou-1",
		"codes":        map[string]string{"http://loinc.org|1234-5": "de_weight"},
		"now":          time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		"input":        map[string]interface{}{},
	}
}

func TestEvaluator_Validate(t *testing.T) {
	e := newTestEvaluator(t)

	assert.NoError(t, e.Validate(`document.status == "final"`))
	assert.Error(t, e.Validate(`document.status ==`))
}

func TestEvaluator_EvaluateBool(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	ok, err := e.EvaluateBool(ctx, `document.status == "final"`, testBindings())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool(ctx, `document.status == "draft"`, testBindings())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_EvaluateBool_NonBoolResult(t *testing.T) {
	e := newTestEvaluator(t)

	_, err := e.EvaluateBool(context.Background(), `document.status`, testBindings())
	assert.Error(t, err)
}

func TestEvaluator_EvaluateBool_CompileError(t *testing.T) {
	e := newTestEvaluator(t)

	_, err := e.EvaluateBool(context.Background(), `document.status ==`, testBindings())
	require.Error(t, err)

	var compileErr *CompileError
	assert.True(t, errors.As(err, &compileErr))
}

func TestEvaluator_EvaluateDate(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	date, ok, err := e.EvaluateDate(ctx, `"2024-03-15T10:00:00Z"`, testBindings())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), date)

	_, ok, err = e.EvaluateDate(ctx, `""`, testBindings())
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = e.EvaluateDate(ctx, `null`, testBindings())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluator_EvaluateDate_Timestamp(t *testing.T) {
	e := newTestEvaluator(t)

	date, ok, err := e.EvaluateDate(context.Background(), `now`, testBindings())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), date.UTC())
}

func TestEvaluator_EvaluateDate_Unparseable(t *testing.T) {
	e := newTestEvaluator(t)

	_, _, err := e.EvaluateDate(context.Background(), `"not-a-date"`, testBindings())
	assert.Error(t, err)
}

func TestEvaluator_EvaluateString(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	s, err := e.EvaluateString(ctx, `orgUnit`, testBindings())
	require.NoError(t, err)
	assert.Equal(t, "ou-1", s)

	s, err = e.EvaluateString(ctx, `null`, testBindings())
	require.NoError(t, err)
	assert.Equal(t, "", s)
}

func TestEvaluator_EvaluateVerdict(t *testing.T) {
	e := newTestEvaluator(t)
	ctx := context.Background()

	cases := []struct {
		script  string
		verdict Verdict
	}{
		{`"BREAK"`, VerdictBreak},
		{`"NEW_EVENT"`, VerdictNewEvent},
		{`"CONTINUE"`, VerdictContinue},
		{`"anything else"`, VerdictContinue},
		{`true`, VerdictContinue},
		{`false`, VerdictBreak},
		{`null`, VerdictContinue},
	}
	for _, tc := range cases {
		verdict, err := e.EvaluateVerdict(ctx, tc.script, testBindings())
		require.NoError(t, err, tc.script)
		assert.Equal(t, tc.verdict, verdict, tc.script)
	}
}

func TestEvaluator_EvaluateTransform(t *testing.T) {
	e := newTestEvaluator(t)

	values, err := e.EvaluateTransform(context.Background(),
		`{"de_weight": document.value, "de_status": document.status}`, testBindings())
	require.NoError(t, err)

	assert.Equal(t, 42.0, values["de_weight"])
	assert.Equal(t, "final", values["de_status"])
}

func TestEvaluator_EvaluateTransform_Null(t *testing.T) {
	e := newTestEvaluator(t)

	values, err := e.EvaluateTransform(context.Background(), `null`, testBindings())
	require.NoError(t, err)
	assert.Nil(t, values)
}

func TestEvaluator_EvaluateTransform_NonMap(t *testing.T) {
	e := newTestEvaluator(t)

	_, err := e.EvaluateTransform(context.Background(), `"scalar"`, testBindings())
	assert.Error(t, err)
}

func TestEvaluator_CodesBinding(t *testing.T) {
	e := newTestEvaluator(t)

	s, err := e.EvaluateString(context.Background(), `codes["http://loinc.org|1234-5"]`, testBindings())
	require.NoError(t, err)
	assert.Equal(t, "de_weight", s)
}
