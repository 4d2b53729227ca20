// Package errors provides the standardized error taxonomy for the session layer.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// ErrCodeValidation marks bad local input, rejected before any I/O.
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// ErrCodeTransport marks an unreachable backend or a timed-out call.
	// Transport failures are retryable and drive the circuit breaker.
	ErrCodeTransport ErrorCode = "TRANSPORT_ERROR"

	// ErrCodeUpstream marks a reachable backend that returned an error
	// status. Surfaced verbatim, never retried automatically.
	ErrCodeUpstream ErrorCode = "UPSTREAM_ERROR"

	// ErrCodePersistence marks a failed store write.
	ErrCodePersistence ErrorCode = "PERSISTENCE_ERROR"

	// ErrCodeCircuitOpen marks a query short-circuited because the backend
	// is presumed down.
	ErrCodeCircuitOpen ErrorCode = "CIRCUIT_OPEN"

	// ErrCodeQueryInProgress marks a submission rejected because another
	// query is already in flight for the same conversation.
	ErrCodeQueryInProgress ErrorCode = "QUERY_IN_PROGRESS"

	// ErrCodeNotFound marks a missing conversation or message.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Status    int       `json:"status,omitempty"` // HTTP status for upstream errors
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// ==========================
// Error Constructors
// ==========================

// NewValidationError creates a non-retryable local input error.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError creates a retryable connectivity/timeout error.
func NewTransportError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransport,
		Message:   "Search backend unreachable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewUpstreamError creates a non-retryable backend error carrying the HTTP status.
func NewUpstreamError(status int, message string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUpstream,
		Message:   "Search backend returned an error",
		Details:   message,
		Status:    status,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPersistenceError creates a store write error for the named operation.
func NewPersistenceError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePersistence,
		Message:   "Conversation store write failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewCircuitOpenError creates a fail-fast error for an open circuit.
func NewCircuitOpenError(retryAfter time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeCircuitOpen,
		Message:   "Search backend presumed down, query short-circuited",
		Details:   fmt.Sprintf("retry after %s", retryAfter.Round(time.Second)),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryInProgressError creates a rejection for an overlapping submission.
func NewQueryInProgressError(conversationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryInProgress,
		Message:   "A query is already in flight for this conversation",
		Details:   fmt.Sprintf("conversationId: %s", conversationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable missing-entity error.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Utility Functions
// ==========================

// AsStandard extracts a StandardError from an error chain, or nil.
func AsStandard(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return nil
}

// CodeOf returns the error code of err, or empty for unclassified errors.
func CodeOf(err error) ErrorCode {
	if stdErr := AsStandard(err); stdErr != nil {
		return stdErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsValidation reports whether err is a local input rejection.
func IsValidation(err error) bool {
	return IsCode(err, ErrCodeValidation)
}

// IsTransport reports whether err is a connectivity/timeout failure.
func IsTransport(err error) bool {
	return IsCode(err, ErrCodeTransport)
}

// IsUpstream reports whether err is a backend-reported error.
func IsUpstream(err error) bool {
	return IsCode(err, ErrCodeUpstream)
}

// IsPersistence reports whether err is a store write failure.
func IsPersistence(err error) bool {
	return IsCode(err, ErrCodePersistence)
}

// IsCircuitOpen reports whether err is a short-circuited query.
func IsCircuitOpen(err error) bool {
	return IsCode(err, ErrCodeCircuitOpen)
}

// IsRetryable reports whether err is worth retrying against the same dependency.
func IsRetryable(err error) bool {
	if stdErr := AsStandard(err); stdErr != nil {
		return stdErr.Retryable
	}
	return false
}
