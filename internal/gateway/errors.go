package gateway

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies gateway failures.
type Kind string

const (
	KindNetwork    Kind = "network"
	KindBackend    Kind = "backend"
	KindParse      Kind = "parse"
	KindValidation Kind = "validation"
	KindTimeout    Kind = "timeout"
)

// Error is returned by every gateway operation that failed. The value returned next to it
// is always the operation's safe default, so callers that only care about rendering can
// ignore the error.
type Error struct {
	Kind   Kind
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s error (status %d): %v", e.Op, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a gateway error, or "" for nil and foreign errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return ""
}

// IsTimeout reports whether err is a gateway timeout.
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

func newError(op string, kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// classify turns a transport error into a network or timeout gateway error.
func classify(op string, err error) *Error {
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(op, KindTimeout, 0, err)
	}
	return newError(op, KindNetwork, 0, err)
}
