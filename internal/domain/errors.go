package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransport indicates a failed outbound fetch: a non-success status
	// code or a network-level failure.
	ErrTransport = errors.New("transport failure")

	// ErrMalformedDocument indicates a document that could not be parsed, or
	// that parsed but is missing a required field.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrPrimingFetch indicates that the initial fetch establishing the total
	// result count failed, which is fatal to the whole pagination run.
	ErrPrimingFetch = errors.New("priming fetch failed")

	// ErrGateInvariant indicates that the rate gate admitted more operations
	// inside its window than its limit allows. Unreachable by construction;
	// checked so tests can prove it stays that way.
	ErrGateInvariant = errors.New("rate gate invariant violated")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransportError carries the status and body of a failed fetch so the caller
// can decide whether to abort or skip the unit of work that issued it.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Cause      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *TransportError) Unwrap() error {
	return ErrTransport
}

// MalformedDocumentError identifies which unit of work produced an unparsable
// or incomplete document.
type MalformedDocumentError struct {
	Entity string
	ID     string
	Cause  error
}

// Error implements the error interface.
func (e *MalformedDocumentError) Error() string {
	return fmt.Sprintf("malformed %s document %s: %v", e.Entity, e.ID, e.Cause)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *MalformedDocumentError) Unwrap() error {
	return ErrMalformedDocument
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewTransportError creates a TransportError for a non-success response.
func NewTransportError(url string, statusCode int, body string) *TransportError {
	return &TransportError{
		URL:        url,
		StatusCode: statusCode,
		Body:       body,
	}
}

// NewTransportCauseError creates a TransportError for a network-level failure.
func NewTransportCauseError(url string, cause error) *TransportError {
	return &TransportError{
		URL:   url,
		Cause: cause,
	}
}

// NewMalformedDocumentError creates a new MalformedDocumentError.
func NewMalformedDocumentError(entity, id string, cause error) *MalformedDocumentError {
	return &MalformedDocumentError{
		Entity: entity,
		ID:     id,
		Cause:  cause,
	}
}
