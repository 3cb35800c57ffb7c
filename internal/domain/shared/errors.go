// Package shared contains common domain types, errors and events that are used
// across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progress", "tutoring"
	Op      string // Operation that failed, e.g., "Get", "CompareAndSet"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progress domain errors
var (
	ErrProgressNotFound  = NewDomainError("progress", "Get", ErrNotFound, "progress record not found")
	ErrProgressConflict  = NewDomainError("progress", "CompareAndSet", ErrConcurrentModification, "progress record was modified concurrently")
	ErrInvalidUserID     = NewDomainError("progress", "Validate", ErrInvalidID, "invalid user ID")
	ErrUnknownTrigger    = NewDomainError("progress", "Validate", ErrInvalidInput, "unknown progress trigger")
	ErrInvalidMinutes    = NewDomainError("progress", "Validate", ErrValueOutOfRange, "session minutes out of range")
	ErrMissingGrantValue = NewDomainError("progress", "Validate", ErrInvalidInput, "manual grant requires a positive amount")
)

// Tutoring domain errors
var (
	ErrSessionNotFound     = NewDomainError("tutoring", "Find", ErrNotFound, "tutoring session not found")
	ErrSessionNotActive    = NewDomainError("tutoring", "Send", ErrInvalidState, "tutoring session is not active")
	ErrSessionAlreadyEnded = NewDomainError("tutoring", "End", ErrInvalidState, "tutoring session already ended")
	ErrSessionStarted      = NewDomainError("tutoring", "Start", ErrStateTransition, "tutoring session already started")
	ErrInvalidMode         = NewDomainError("tutoring", "Validate", ErrInvalidInput, "unknown study mode")
	ErrEmptyMessage        = NewDomainError("tutoring", "Send", ErrInvalidInput, "message cannot be empty")
	ErrTutorUnavailable    = NewDomainError("tutor", "Request", ErrServiceUnavailable, "tutor provider is unavailable")
	ErrTutorRateLimited    = NewDomainError("tutor", "Request", ErrRateLimited, "tutor provider rate limit exceeded")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsConflict checks if the error signals a lost optimistic-lock race.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
// Permission failures are never retryable.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrUnauthorized) {
		return false
	}
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
