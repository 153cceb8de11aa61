package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")

	// ErrNotFound is returned when an application, user or service template does not exist
	ErrNotFound = errors.New("not found")

	// ErrNumberingConflict is returned when two completions raced on the same document sequence
	ErrNumberingConflict = errors.New("document numbering conflict")

	// ErrStorageFailure is returned when the underlying store is unavailable
	ErrStorageFailure = errors.New("storage failure")

	// ErrConcurrentUpdate is returned when the guarded status update matched no row
	ErrConcurrentUpdate = errors.New("application was modified concurrently")
)

// Kind classifies workflow errors for callers
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindNumberingConflict Kind = "NUMBERING_CONFLICT"
	KindStorageFailure    Kind = "STORAGE_FAILURE"
)

var kindSentinels = map[Kind]error{
	KindNotFound:          ErrNotFound,
	KindInvalidTransition: ErrInvalidTransition,
	KindNumberingConflict: ErrNumberingConflict,
	KindStorageFailure:    ErrStorageFailure,
}

// Error is a typed workflow error carrying its kind and the failing operation
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kindSentinels[e.Kind])
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// Retryable reports whether repeating the whole operation may succeed
func (e *Error) Retryable() bool {
	return e.Kind == KindNumberingConflict || e.Kind == KindStorageFailure
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NotFoundError builds a NotFound error for the given operation
func NotFoundError(op, format string, args ...interface{}) error {
	return newError(KindNotFound, op, fmt.Errorf(format, args...))
}

// InvalidTransitionError builds an InvalidTransition error for the given operation
func InvalidTransitionError(op, format string, args ...interface{}) error {
	return newError(KindInvalidTransition, op, fmt.Errorf(format, args...))
}

// NumberingConflictError wraps a sequence or uniqueness failure
func NumberingConflictError(op string, err error) error {
	return newError(KindNumberingConflict, op, err)
}

// StorageFailureError wraps a persistence failure
func StorageFailureError(op string, err error) error {
	return newError(KindStorageFailure, op, err)
}

// KindOf returns the kind of err, or an empty Kind for unclassified errors
func KindOf(err error) Kind {
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return wfErr.Kind
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrGuardFailed), errors.Is(err, ErrInvalidState):
		return KindInvalidTransition
	case errors.Is(err, ErrNumberingConflict):
		return KindNumberingConflict
	case errors.Is(err, ErrStorageFailure), errors.Is(err, ErrConcurrentUpdate):
		return KindStorageFailure
	}
	return ""
}

// IsRetryable reports whether err is transient
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindNumberingConflict, KindStorageFailure:
		return true
	}
	return false
}

// Classify wraps err as a typed *Error. Errors that are already typed pass
// through; unclassified errors become StorageFailure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var wfErr *Error
	if errors.As(err, &wfErr) {
		return err
	}
	kind := KindOf(err)
	if kind == "" {
		kind = KindStorageFailure
	}
	return newError(kind, op, err)
}
