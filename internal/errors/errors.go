// Package errors defines the error taxonomy shared by the engine packages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind classifies an engine error.
type Kind int

const (
	ErrInternal Kind = iota
	ErrInvalidCount
	ErrInsufficientPool
	ErrNameNotFound
	ErrInvalidWeight
	ErrDrawAlreadyActive
	ErrNoActiveDraw
	ErrCorruptState
	ErrSnapshotNotFound
	ErrIOFailure
	ErrInvalidInput
)

var kindNames = map[Kind]string{
	ErrInternal:          "internal",
	ErrInvalidCount:      "invalid_count",
	ErrInsufficientPool:  "insufficient_pool",
	ErrNameNotFound:      "name_not_found",
	ErrInvalidWeight:     "invalid_weight",
	ErrDrawAlreadyActive: "draw_already_active",
	ErrNoActiveDraw:      "no_active_draw",
	ErrCorruptState:      "corrupt_state",
	ErrSnapshotNotFound:  "snapshot_not_found",
	ErrIOFailure:         "io_failure",
	ErrInvalidInput:      "invalid_input",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is an engine error with a kind for classification
type Error struct {
	Kind    Kind
	Message string
	Err     error // underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with additional context
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func InvalidCount(count int) *Error {
	return Newf(ErrInvalidCount, "count must be at least 1, got %d", count)
}

func InsufficientPool(count, available int) *Error {
	return Newf(ErrInsufficientPool, "cannot draw %d names from %d undrawn", count, available)
}

func NameNotFound(name, pool string) *Error {
	return Newf(ErrNameNotFound, "%q is not in the %s pool", name, pool)
}

func InvalidWeight(w int) *Error {
	return Newf(ErrInvalidWeight, "weight must be between 1 and 10, got %d", w)
}

func IOFailure(err error, msg string) *Error {
	return Wrap(err, ErrIOFailure, msg)
}

func CorruptState(err error, msg string) *Error {
	return Wrap(err, ErrCorruptState, msg)
}

func SnapshotNotFound(id string) *Error {
	return Newf(ErrSnapshotNotFound, "snapshot %q not found", id)
}

func InvalidInput(msg string) *Error {
	return New(ErrInvalidInput, msg)
}

func InvalidInputf(format string, args ...interface{}) *Error {
	return Newf(ErrInvalidInput, format, args...)
}

// KindOf returns the kind of the first *Error in err's chain, or ErrInternal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var e *Error
	return stderrors.As(err, &e) && e.Kind == kind
}
