// Package errs defines the error kinds shared by all components and the
// helpers used to attach an operation name and a kind to an error.
//
// Callers test kinds with errors.Is:
//
//	if errors.Is(err, errs.ErrNotFound) { ... }
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.
var (
	ErrValidation    = errors.New("validation error")
	ErrNotFound      = errors.New("not found")
	ErrStateConflict = errors.New("state conflict")
	ErrUnavailable   = errors.New("resource unavailable")
	ErrInternal      = errors.New("internal error")
)

var kinds = []error{ErrValidation, ErrNotFound, ErrStateConflict, ErrUnavailable, ErrInternal}

// Error carries the failing operation, its kind and an optional cause.
type Error struct {
	Op   string
	Kind error
	Err  error
	Msg  string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
		if e.Err != nil {
			b.WriteString(": ")
			b.WriteString(e.Err.Error())
		}
	case e.Err != nil:
		b.WriteString(e.Err.Error())
	case e.Kind != nil:
		b.WriteString(e.Kind.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewKind returns an error of the given kind for op.
func NewKind(op string, kind error) error {
	return &Error{Op: op, Kind: kind}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(op string, kind error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapKind wraps err with op and kind. A nil err yields nil.
func WrapKind(op string, kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Wrap adds op to err. An existing kind is kept, otherwise the result is Internal.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: KindOf(err), Err: err}
}

// KindOf reports the kind of err, defaulting to ErrInternal.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}

// Is reports whether err has the given kind.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}

// Code returns a short snake_case identifier for the kind of err.
func Code(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrStateConflict:
		return "state_conflict"
	case ErrUnavailable:
		return "resource_unavailable"
	default:
		return "internal_error"
	}
}

// Message returns the innermost human readable text of err, without
// operation prefixes. Internal errors are reduced to a generic message.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if KindOf(err) == ErrInternal {
		return "internal error"
	}
	var e *Error
	for errors.As(err, &e) {
		if e.Msg != "" {
			return e.Msg
		}
		if e.Err == nil {
			return e.Kind.Error()
		}
		err = e.Err
	}
	return err.Error()
}
