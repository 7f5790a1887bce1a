// Package errors defines the error kinds used across photo-mirror.
//
// Every error that crosses a package boundary during a run carries a Kind so
// that callers can tell abort-worthy conditions (bad credentials, unknown
// account) from per-item conditions (a transient store failure) without
// inspecting messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an error. Kinds are strings so they read well in logs and
// in the run history.
type Kind string

const (
	// KindAuth indicates missing or invalid credentials for a remote service.
	KindAuth Kind = "AUTH"

	// KindNotFound indicates an unknown, deactivated or inaccessible account or album.
	KindNotFound Kind = "NOT_FOUND"

	// KindDataQuality indicates a source record without a usable size variant.
	KindDataQuality Kind = "DATA_QUALITY"

	// KindRemoteTransient indicates a transport-level failure that may succeed on retry.
	KindRemoteTransient Kind = "REMOTE_TRANSIENT"

	// KindRemote indicates a remote failure that retrying will not fix.
	KindRemote Kind = "REMOTE"

	// KindCapacity indicates an invalid transfer count that was clamped.
	KindCapacity Kind = "CAPACITY"

	// KindUnknown is returned by KindOf for errors without a kind.
	KindUnknown Kind = "UNKNOWN"
)

// Error is an error with a Kind and the operation that produced it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind. This lets callers
// match with errors.Is(err, &Error{Kind: KindAuth}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Wrap attaches a kind and operation to err. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, op, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsFatal reports whether err must stop the run before reconciliation.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case KindAuth, KindNotFound:
		return true
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindRemoteTransient
}

// New, Is and As are re-exported so callers need a single errors import.
var (
	New = stderrors.New
	Is  = stderrors.Is
	As  = stderrors.As
)
