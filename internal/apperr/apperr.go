// Package apperr defines the failure classes surfaced by the processing pipeline.
//
// Every error leaving the service layer is an *Error whose Kind is one of the
// sentinel values below, so callers branch with errors.Is instead of parsing
// messages.
package apperr

import (
	"errors"
	"fmt"
)

// Failure classes.
var (
	ErrInput    = errors.New("invalid input")
	ErrDownload = errors.New("download failed")
	ErrProbe    = errors.New("metadata probe failed")
	ErrDecode   = errors.New("decode failed")
	ErrRender   = errors.New("render failed")
	ErrEncode   = errors.New("encode failed")
	ErrStorage  = errors.New("storage failed")

	// ErrUnresolved means no playable stream could be found for a URL.
	ErrUnresolved = errors.New("media url unresolved")
)

// Error carries the failure class, the operation that failed and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the failure class of e.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Wrap classifies err as kind. A nil err yields nil. An err that already
// carries a failure class keeps it.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New creates a classified error from a message.
func New(kind error, op, msg string) error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// KindOf returns the failure class of err, or nil when it has none.
func KindOf(err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return nil
}

// Cause returns the underlying cause of a classified error, or err itself.
func Cause(err error) error {
	var ae *Error
	if errors.As(err, &ae) && ae.Err != nil {
		return ae.Err
	}
	return err
}
