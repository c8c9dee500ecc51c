package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for recovery logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on
	// a later run. Examples: network timeouts, service unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting or quota exhaustion.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates a resource state conflict, such as a
	// concurrent modification detected by the provider.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid declarations, permission denied, cycles.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with resource context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the resource identity that caused the error, if any.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Resource != "" && e.Operation != "" {
		return fmt.Sprintf("[%s] %s (resource=%s, operation=%s): %s",
			e.Class, e.Message, e.Resource, e.Operation, e.unwrapMessage())
	}
	if e.Resource != "" {
		return fmt.Sprintf("[%s] %s (resource=%s): %s",
			e.Class, e.Message, e.Resource, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

func (e *EngineError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithResource adds resource context to an error.
func (e *EngineError) WithResource(identity string) *EngineError {
	e.Resource = identity
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// HasCode returns true if err carries the given engine error code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsInvalidInput returns true if the error stems from invalid declaration
// input: a reference cycle, a reference to an undeclared resource, or a
// validation failure. The CLI maps these to exit code 2.
func IsInvalidInput(err error) bool {
	return HasCode(err, ErrCodeCycle) ||
		HasCode(err, ErrCodeUnresolvedReference) ||
		HasCode(err, ErrCodeValidation)
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// Engine error codes.
const (
	// ErrCodeCycle is returned when the declaration set contains a
	// reference cycle. Fatal at planning time.
	ErrCodeCycle = "CYCLE_DETECTED"

	// ErrCodeUnresolvedReference is returned when an attribute expression
	// references a resource identity that is not declared. Fatal at
	// planning time.
	ErrCodeUnresolvedReference = "UNRESOLVED_REFERENCE"

	// ErrCodeProviderFailed scopes a provider failure to one action and
	// its transitive dependents.
	ErrCodeProviderFailed = "PROVIDER_FAILED"

	// ErrCodeStateStore is returned when state persistence fails. Fatal:
	// apply cannot safely continue if results cannot be recorded.
	ErrCodeStateStore = "STATE_STORE_FAILED"

	// ErrCodeDependencyFailed marks an action skipped because one of its
	// dependencies failed.
	ErrCodeDependencyFailed = "DEPENDENCY_FAILED"

	// ErrCodeValidation marks invalid declarations or plans.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeCancelled marks an action not started because the run was
	// cancelled.
	ErrCodeCancelled = "CANCELLED"

	// ErrCodeInternal marks bugs in the engine itself.
	ErrCodeInternal = "INTERNAL_ERROR"
)
