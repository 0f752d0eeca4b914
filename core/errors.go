package core

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// ValidationError is a local, pre-network error. It is always recoverable by correcting input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if len(err.Fields) > 0 {
		return err.Fields[0].Error
	}
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func (err ValidationError) Unwrap() error { return err.Err }

// RequestError is an error reported by the remote school API (or the network on its way).
// Message is surfaced verbatim to the operator.
type RequestError struct {
	StatusCode int
	Message    string
}

func NewRequestError(code int, msg string) error {
	if msg == "" {
		msg = http.StatusText(code)
	}
	return &RequestError{StatusCode: code, Message: msg}
}

func (err RequestError) Error() string {
	if err.StatusCode == 0 {
		return err.Message
	}
	return fmt.Sprintf("%s (status %d)", err.Message, err.StatusCode)
}

// IsNotFound reports whether err is a RequestError with a 404 status.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
