// Package syncerr classifies backend failures.
package syncerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	// KindUnauthorized is a rejected login or an expired session.
	KindUnauthorized
	// KindTransport covers network errors and timeouts.
	KindTransport
	// KindRejected is a business-level failure reported by the backend.
	KindRejected
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Error is a classified failure of one backend call.
type Error struct {
	Kind   Kind
	System string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.System, e.Op, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.System, e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, system, op string, err error) *Error {
	return &Error{Kind: kind, System: system, Op: op, Err: err}
}

func Unauthorized(system, op string, err error) *Error {
	return New(KindUnauthorized, system, op, err)
}

func Transport(system, op string, err error) *Error {
	return New(KindTransport, system, op, err)
}

func Rejected(system, op string, err error) *Error {
	return New(KindRejected, system, op, err)
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }
func IsTransport(err error) bool    { return KindOf(err) == KindTransport }
func IsRejected(err error) bool     { return KindOf(err) == KindRejected }

// ErrNotFound reports a lookup that matched nothing.
var ErrNotFound = errors.New("not found")
