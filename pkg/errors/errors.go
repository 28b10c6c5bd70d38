// Package errors provides structured error types for platctl.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode identifies specific error conditions
type ErrorCode string

const (
	ErrCodeValidation  ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound    ErrorCode = "NOT_FOUND"
	ErrCodeAmbiguous   ErrorCode = "AMBIGUOUS_RESULT"
	ErrCodeTransport   ErrorCode = "TRANSPORT_ERROR"
	ErrCodeTimeout     ErrorCode = "TIMEOUT"
	ErrCodeFailedStart ErrorCode = "FAILED_START"
	ErrCodeResource    ErrorCode = "RESOURCE_ERROR"
	ErrCodeBackend     ErrorCode = "BACKEND_ERROR"
	ErrCodeParse       ErrorCode = "PARSE_ERROR"
	ErrCodeTask        ErrorCode = "TASK_FAILED"
)

// Error is the base error type for platctl
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Wrap creates a new error wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetails adds details to an error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail adds a single detail to an error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// ValidationError creates a validation error
func ValidationError(message string, details map[string]interface{}) *Error {
	if details == nil {
		details = make(map[string]interface{})
	}
	return &Error{
		Code:    ErrCodeValidation,
		Message: message,
		Details: details,
	}
}

// NotFoundError creates a not found error
func NotFoundError(resourceType, name string) *Error {
	return &Error{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q not found", resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
		},
	}
}

// AmbiguousError is returned when a lookup that must match exactly one object
// matched several.
func AmbiguousError(resourceType, name string, matches int) *Error {
	return &Error{
		Code:    ErrCodeAmbiguous,
		Message: fmt.Sprintf("%d %s objects match %q, expected exactly one", matches, resourceType, name),
		Details: map[string]interface{}{
			"resource_type": resourceType,
			"name":          name,
			"matches":       matches,
		},
	}
}

// TransportError creates an error for a control-plane command that could not
// be executed.
func TransportError(verb string, err error) *Error {
	return &Error{
		Code:    ErrCodeTransport,
		Message: fmt.Sprintf("command %q could not be executed", verb),
		Cause:   err,
		Details: map[string]interface{}{
			"verb": verb,
		},
	}
}

// CommandError creates an error for a command the control plane rejected.
func CommandError(verb, detail string) *Error {
	return &Error{
		Code:    ErrCodeTransport,
		Message: fmt.Sprintf("command %q failed: %s", verb, detail),
		Details: map[string]interface{}{
			"verb": verb,
		},
	}
}

// TimeoutError creates an error for a wait that exhausted its bound.
func TimeoutError(what string, attempts int, elapsed time.Duration) *Error {
	return &Error{
		Code:    ErrCodeTimeout,
		Message: fmt.Sprintf("%s did not settle after %d attempts (%s)", what, attempts, elapsed.Round(time.Millisecond)),
		Details: map[string]interface{}{
			"attempts": attempts,
			"elapsed":  elapsed,
		},
	}
}

// TaskError wraps the failure of a single workflow task.
func TaskError(task string, err error) *Error {
	return &Error{
		Code:    ErrCodeTask,
		Message: fmt.Sprintf("task %s failed", task),
		Cause:   err,
		Details: map[string]interface{}{
			"task": task,
		},
	}
}

// ParseError creates a parse error
func ParseError(filePath string, err error) *Error {
	return &Error{
		Code:    ErrCodeParse,
		Message: fmt.Sprintf("failed to parse %s", filePath),
		Cause:   err,
		Details: map[string]interface{}{
			"file": filePath,
		},
	}
}

// BackendError creates a backend error
func BackendError(backend string, operation string, err error) *Error {
	return &Error{
		Code:    ErrCodeBackend,
		Message: fmt.Sprintf("backend %s failed during %s", backend, operation),
		Cause:   err,
		Details: map[string]interface{}{
			"backend":   backend,
			"operation": operation,
		},
	}
}

// Is reports whether err, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}
