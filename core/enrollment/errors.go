package enrollment

import (
	"github.com/pkg/errors"

	"github.com/trezcool/registrar/core"
)

// Kind classifies workflow failures.
type Kind string

const (
	ValidationFailed Kind = "validation_failed"
	CreateFailed     Kind = "create_failed"
	UpdateFailed     Kind = "update_failed"
)

// Error is a workflow failure. Upload and fee failures are never Errors: they are Warnings.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func validationFailed(err error) error {
	return &Error{Kind: ValidationFailed, Message: err.Error(), Err: err}
}

// requestFailed keeps the server's message verbatim when there is one.
func requestFailed(kind Kind, err error) error {
	msg := err.Error()
	var reqErr *core.RequestError
	if errors.As(err, &reqErr) {
		msg = reqErr.Message
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// IsKind reports whether err is a workflow Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
