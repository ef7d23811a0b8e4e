package transfer

import (
	"errors"
	"fmt"
)

// Kind classifies a transfer failure so callers can tell configuration
// problems, credential problems, and transient faults apart.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindSourceNetwork       Kind = "source_network"
	KindSourceAuth          Kind = "source_auth"
	KindSourceNotFound      Kind = "source_not_found"
	KindDestinationNotFound Kind = "destination_not_found"
	KindDestinationAccess   Kind = "destination_access"
	KindReconciliation      Kind = "reconciliation"
	KindUnexpected          Kind = "unexpected"
)

// Error is a classified transfer failure. It is always returned as a value to
// the caller; the caller decides whether it is job-fatal.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the kind from err, or KindUnexpected for unclassified errors.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnexpected
}
