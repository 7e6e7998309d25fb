package shared

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a DomainError so callers can decide how to react
// without matching on individual codes.
type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindTransport  ErrorKind = "TRANSPORT"
	KindConflict   ErrorKind = "CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// WithCause returns a copy of e wrapping cause
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.cause = cause
	return &c
}

// Is matches another DomainError by code, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of its message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for input rejected before any mutation.
func NewValidationError(code, message string) *DomainError {
	return &DomainError{
		Kind:    KindValidation,
		Code:    code,
		Message: message,
	}
}

// NewNotFoundError creates an error for a reference to an unknown entity.
func NewNotFoundError(entity, id string) *DomainError {
	return &DomainError{
		Kind:    KindNotFound,
		Code:    ErrNotFound.Code,
		Message: fmt.Sprintf("%s %q not found", entity, id),
	}
}

// NewTransportError wraps a persistence failure. The message stays generic;
// the cause is reachable through errors.Unwrap.
func NewTransportError(op string, cause error) *DomainError {
	return &DomainError{
		Kind:    KindTransport,
		Code:    ErrTransport.Code,
		Message: fmt.Sprintf("billing store unavailable (%s)", op),
		cause:   cause,
	}
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Code: "NOT_FOUND", Message: "Resource not found"}
	ErrAlreadyExists       = &DomainError{Kind: KindConflict, Code: "ALREADY_EXISTS", Message: "Resource already exists"}
	ErrInvalidInput        = &DomainError{Kind: KindValidation, Code: "INVALID_INPUT", Message: "Invalid input provided"}
	ErrConcurrencyConflict = &DomainError{Kind: KindConflict, Code: "CONCURRENCY_CONFLICT", Message: "Resource was modified by another process"}
	ErrTransport           = &DomainError{Kind: KindTransport, Code: "TRANSPORT", Message: "Billing store unavailable"}
)

func kindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return kindOf(err) == KindValidation }

// IsNotFound reports whether err references an unknown entity.
func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }

// IsTransport reports whether err came from the persistence collaborator.
func IsTransport(err error) bool { return kindOf(err) == KindTransport }

// CodeOf returns the code of a DomainError, or "" for other errors.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
