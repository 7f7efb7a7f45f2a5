package reconerr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindIdentityUnresolved Kind = "identity_unresolved"
	KindAmbiguousIdentity  Kind = "ambiguous_identity"
	KindActivityUnmatched  Kind = "activity_unmatched"
	KindIntegrityViolation Kind = "integrity_violation"
	KindWriteConflict      Kind = "write_conflict"
	KindInvalidRecord      Kind = "invalid_record"
)

// Error is a classified reconciliation failure. Label is the imported text (student label,
// class label or activity label) the failure is about, when there is one.
type Error struct {
	Kind   Kind
	Label  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Kind)
	if e.Label != "" {
		msg += fmt.Sprintf(" %q", e.Label)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind
}

var (
	ErrIdentityUnresolved = &Error{Kind: KindIdentityUnresolved}
	ErrAmbiguousIdentity  = &Error{Kind: KindAmbiguousIdentity}
	ErrActivityUnmatched  = &Error{Kind: KindActivityUnmatched}
	ErrIntegrityViolation = &Error{Kind: KindIntegrityViolation}
	ErrWriteConflict      = &Error{Kind: KindWriteConflict}
	ErrInvalidRecord      = &Error{Kind: KindInvalidRecord}
)

func New(kind Kind, label, reason string) *Error {
	return &Error{Kind: kind, Label: label, Reason: reason}
}

func Wrap(kind Kind, label string, err error) *Error {
	return &Error{Kind: kind, Label: label, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Recoverable reports whether retrying after re-ensuring catalog rows can succeed.
func Recoverable(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}
