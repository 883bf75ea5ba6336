package doc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures the viewer core can report. Backends
// and pipelines attach a kind to every error they surface so the shell can
// decide between a password prompt, a modal error, or a silent log line.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindIO
	KindFormat
	KindCorrupt
	KindPasswordRequired
	KindPasswordIncorrect
	KindInsufficientPermissions
	KindLibraryUnavailable
	KindNotSupported
	KindInvalidArgument
	KindCanceled
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindIO:
		return "io error"
	case KindFormat:
		return "format error"
	case KindCorrupt:
		return "corrupt document"
	case KindPasswordRequired:
		return "password required"
	case KindPasswordIncorrect:
		return "password incorrect"
	case KindInsufficientPermissions:
		return "insufficient permissions"
	case KindLibraryUnavailable:
		return "library unavailable"
	case KindNotSupported:
		return "not supported"
	case KindInvalidArgument:
		return "invalid argument"
	case KindCanceled:
		return "canceled"
	case KindTimeout:
		return "timeout"
	default:
		return "internal error"
	}
}

// Error is the structured error type of the core. Op names the operation
// ("open", "render", "save"), Path the file involved when there is one.
type Error struct {
	Kind ErrorKind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an *Error. The wrapped err may be nil.
func E(kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an *Error with a formatted message as its cause.
func Errorf(kind ErrorKind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Unclassified errors report KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}
