package chat

import (
	"errors"
	"fmt"
)

// Kind classifies command failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindNotAuthenticated
	KindBackendUnavailable
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid argument"
	case KindNotAuthenticated:
		return "not authenticated"
	case KindBackendUnavailable:
		return "backend unavailable"
	case KindNotFound:
		return "not found"
	}
	return "unknown"
}

// Sentinels for errors.Is. An *Error matches the sentinel of its Kind.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNotFound           = errors.New("not found")
)

// Error is returned by every core command.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of e's Kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrInvalidArgument:
		return e.Kind == KindInvalidArgument
	case ErrNotAuthenticated:
		return e.Kind == KindNotAuthenticated
	case ErrBackendUnavailable:
		return e.Kind == KindBackendUnavailable
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// KindOf returns the Kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func invalid(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindInvalidArgument, Err: fmt.Errorf(format, args...)}
}

func notFound(op, format string, args ...any) error {
	return &Error{Op: op, Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func unauthenticated(op string) error {
	return &Error{Op: op, Kind: KindNotAuthenticated}
}

// backend wraps an adapter failure. Errors gone reports as missing become
// NotFound.
func backend(op string, err error, gone func(error) bool) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	kind := KindBackendUnavailable
	if gone != nil && gone(err) {
		kind = KindNotFound
	}
	return &Error{Op: op, Kind: kind, Err: err}
}
