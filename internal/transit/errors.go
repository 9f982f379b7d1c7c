package transit

import (
	"errors"
	"fmt"
	"net/http"
)

// Transit errors.
var (
	ErrStationNotFound = errors.New("station not found")
	ErrNotFound        = errors.New("resource not found")
	ErrUpstream        = errors.New("upstream API error")
	ErrValidation      = errors.New("validation failed")
	ErrTimeout         = errors.New("upstream request timed out")
)

// StationNotFoundError is returned when a station search yields no results.
type StationNotFoundError struct {
	Query string
}

func (e *StationNotFoundError) Error() string {
	return "Station not found: " + e.Query
}

// Is reports whether target is ErrStationNotFound.
func (e *StationNotFoundError) Is(target error) bool {
	return target == ErrStationNotFound
}

// APIError is returned when the upstream API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	URL        string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusNotFound {
		return fmt.Sprintf("Resource not found (404): %s", e.URL)
	}
	return fmt.Sprintf("Upstream API error (%d)", e.StatusCode)
}

// Is matches ErrUpstream for every status and ErrNotFound for 404.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUpstream:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// ValidationError is returned for malformed input.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
