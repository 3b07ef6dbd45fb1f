package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the transform pipeline. "Not applicable" is never an
// error: the engine signals it with a nil outcome and the caller moves on to
// the next rule.
var (
	ErrNotFound   = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal   = NewError("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)

	// ErrData covers recoverable, document-specific failures: required
	// upstream data (tracked subject, resolvable event) is missing right
	// now but may appear later. Retryable.
	ErrData = NewError("DATA_ERROR", "required data not available", http.StatusUnprocessableEntity)

	// ErrMapping is a configuration fault: a rule references a program,
	// stage or data element the registry does not know. Retrying without
	// an operator fixing the metadata is pointless.
	ErrMapping = NewError("MAPPING_ERROR", "referenced metadata does not exist", http.StatusBadRequest)

	// ErrConflict is raised by the create-only idempotency guard when the
	// target event already holds all required values.
	ErrConflict = NewError("CONFLICT", "data already exists", http.StatusConflict)

	// ErrFatal marks an invariant violation (for example locking without
	// an active lock context). It aborts the whole batch.
	ErrFatal = NewError("FATAL_ERROR", "invariant violation", http.StatusInternalServerError)
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		msg = detailMsg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the failure may resolve on its own. Data
// errors and transient internal failures qualify; mapping faults, conflicts
// and fatal errors do not.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrData.Code, ErrInternal.Code:
		return true
	default:
		return false
	}
}

func (e *Error) IsFatal() bool {
	return e.Code == ErrFatal.Code
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return e.WithDetail("message", fmt.Sprintf(format, args...))
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(err.Details)+1)
	for k, v := range err.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func IsNotFound(err error) bool { return Is(err, ErrNotFound) }

func IsData(err error) bool { return Is(err, ErrData) }

func IsMapping(err error) bool { return Is(err, ErrMapping) }

func IsConflict(err error) bool { return Is(err, ErrConflict) }

func IsFatal(err error) bool {
	var fatal FatalError
	if errors.As(err, &fatal) {
		return fatal.IsFatal()
	}
	return false
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}
	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}
	return response
}
