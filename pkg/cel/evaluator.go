package cel

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// Verdict is the result of a before/after script. Continue keeps the
// selected resource, Break discards it, NewEvent asks for a fresh event on a
// repeatable stage.
type Verdict string

const (
	VerdictContinue Verdict = "CONTINUE"
	VerdictBreak    Verdict = "BREAK"
	VerdictNewEvent Verdict = "NEW_EVENT"
)

// Bindings is the working set of named values a script sees. It is
// assembled once per transform and passed as one parameter instead of being
// threaded through many mutable maps.
type Bindings map[string]interface{}

// Evaluator compiles and runs rule scripts against the tracker binding
// surface. One evaluator is shared across transforms; compilation results
// are not cached because rule scripts are short and reloads are rare.
type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("document", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("subject", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("enrollment", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("event", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("programStage", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("orgUnit", cel.StringType),
		cel.Variable("codes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("now", cel.TimestampType),
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Validate compiles the script without running it. Used by the rule
// management API so broken scripts never reach the engine.
func (e *Evaluator) Validate(script string) error {
	_, issues := e.env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("script validation failed: %w", issues.Err())
	}
	return nil
}

// EvaluateBool runs a condition script; the script must yield a boolean.
func (e *Evaluator) EvaluateBool(ctx context.Context, script string, bindings Bindings) (bool, error) {
	result, err := e.eval(ctx, script, bindings)
	if err != nil {
		return false, err
	}
	boolVal, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("condition script did not return bool, got %T", result)
	}
	return boolVal, nil
}

// EvaluateDate runs a date-lookup script. A null or empty result means the
// script could not produce a date and the caller falls through the cascade.
func (e *Evaluator) EvaluateDate(ctx context.Context, script string, bindings Bindings) (time.Time, bool, error) {
	result, err := e.eval(ctx, script, bindings)
	if err != nil {
		return time.Time{}, false, err
	}

	switch v := result.(type) {
	case nil:
		return time.Time{}, false, nil
	case time.Time:
		return v, true, nil
	case string:
		if v == "" {
			return time.Time{}, false, nil
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("date script returned unparseable value %q: %w", v, err)
		}
		return t, true, nil
	default:
		return time.Time{}, false, fmt.Errorf("date script did not return a timestamp, got %T", result)
	}
}

// EvaluateString runs a script expected to yield a string (for example the
// org-unit lookup). Null results map to "".
func (e *Evaluator) EvaluateString(ctx context.Context, script string, bindings Bindings) (string, error) {
	result, err := e.eval(ctx, script, bindings)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	s, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("script did not return string, got %T", result)
	}
	return s, nil
}

// EvaluateVerdict runs a before/after script. Scripts signal verdicts with
// the literal strings "BREAK" and "NEW_EVENT"; anything else (including
// true/null) continues.
func (e *Evaluator) EvaluateVerdict(ctx context.Context, script string, bindings Bindings) (Verdict, error) {
	result, err := e.eval(ctx, script, bindings)
	if err != nil {
		return VerdictContinue, err
	}

	switch v := result.(type) {
	case string:
		switch Verdict(v) {
		case VerdictBreak:
			return VerdictBreak, nil
		case VerdictNewEvent:
			return VerdictNewEvent, nil
		}
	case bool:
		if !v {
			return VerdictBreak, nil
		}
	}
	return VerdictContinue, nil
}

// EvaluateTransform runs the main transform script. The script yields a map
// of data-element reference to value; the engine applies the values to the
// writable event so per-value dirty tracking stays in one place.
func (e *Evaluator) EvaluateTransform(ctx context.Context, script string, bindings Bindings) (map[string]interface{}, error) {
	raw, err := e.evalRaw(ctx, script, bindings)
	if err != nil {
		return nil, err
	}
	if raw == types.NullValue {
		return nil, nil
	}

	native, err := raw.ConvertToNative(reflect.TypeOf(map[string]interface{}{}))
	if err != nil {
		return nil, fmt.Errorf("transform script did not return a map: %w", err)
	}
	return native.(map[string]interface{}), nil
}

func (e *Evaluator) eval(ctx context.Context, script string, bindings Bindings) (interface{}, error) {
	raw, err := e.evalRaw(ctx, script, bindings)
	if err != nil {
		return nil, err
	}
	if raw == types.NullValue {
		return nil, nil
	}
	if ts, ok := raw.(types.Timestamp); ok {
		return ts.Time, nil
	}
	return raw.Value(), nil
}

// CompileError marks a script that does not compile. At runtime this is a
// configuration fault, not a data problem: the rule was saved with a broken
// script.
type CompileError struct {
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile script: %v", e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func (e *Evaluator) evalRaw(ctx context.Context, script string, bindings Bindings) (ref.Val, error) {
	ast, issues := e.env.Compile(script)
	if issues != nil && issues.Err() != nil {
		return nil, &CompileError{Err: issues.Err()}
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	result, _, err := program.ContextEval(ctx, map[string]interface{}(bindings))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate script: %w", err)
	}
	return result, nil
}
