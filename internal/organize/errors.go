package organize

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrAllPagesRemoved is returned by Remove when nothing would be left.
var ErrAllPagesRemoved = errors.New("all pages removed")

// ValidationError is a user-correctable problem with the request. Message is
// safe to show to the caller.
type ValidationError struct {
	Message string
	Status  int
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Message, e.Err)
	}
	return "validation failed: " + e.Message
}

func (e *ValidationError) Unwrap() error { return e.Err }

// HTTPStatus returns Status, defaulting to 400.
func (e *ValidationError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusBadRequest
	}
	return e.Status
}

// ProcessingError is an internal failure while building output. Message is
// generic; Err holds the detail for logs only.
type ProcessingError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

func invalid(msg string, err error) error {
	return &ValidationError{Message: msg, Err: err}
}

// Invalid builds a ValidationError with an explicit status.
func Invalid(status int, msg string, err error) error {
	return &ValidationError{Message: msg, Status: status, Err: err}
}

func failed(op, msg string, err error) error {
	return &ProcessingError{Op: op, Message: msg, Err: err}
}

// Failed builds a ProcessingError.
func Failed(op, msg string, err error) error {
	return failed(op, msg, err)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsProcessing reports whether err is or wraps a ProcessingError.
func IsProcessing(err error) bool {
	var p *ProcessingError
	return errors.As(err, &p)
}
