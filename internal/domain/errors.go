package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity was not found or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by repositories on unique constraint violations.
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrGateway     = errors.New("payment gateway failure")
	ErrConsistency = errors.New("consistency violation")
)

// Error is a classified failure. Msg is safe to show to callers for the
// validation, not found and conflict kinds.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func Validationf(format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...interface{}) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func Consistencyf(format string, args ...interface{}) error {
	return &Error{Kind: ErrConsistency, Msg: fmt.Sprintf(format, args...)}
}

// GatewayError wraps a failed payment gateway call.
func GatewayError(err error, action string) error {
	return &Error{Kind: ErrGateway, Msg: "payment gateway: " + action, Err: err}
}

// PublicMessage returns the message that may be shown to an API caller.
func PublicMessage(err error) string {
	var de *Error
	if errors.As(err, &de) {
		switch de.Kind {
		case ErrValidation, ErrNotFound, ErrConflict:
			return de.Msg
		case ErrGateway:
			return "payment provider unavailable, please retry"
		}
	}
	if errors.Is(err, ErrNotFound) {
		return "not found"
	}
	return "internal error"
}
