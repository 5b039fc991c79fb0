package dbgmodel

import (
	"errors"
	"fmt"
)

// Status is the code that travels back to the host whenever an operation
// inside the binding layer fails. Host code never sees a raw Go error, every
// boundary converts to a Status plus an error object first.
type Status int32

const (
	StatusOK Status = iota
	StatusInvalidArgument
	StatusNotFound
	StatusIllegalOperation
	StatusNotImplemented
	StatusUnexpected
	StatusOutOfMemory
	StatusDetachedObject
	StatusPassthrough
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalidArgument:
		return "invalid argument"
	case StatusNotFound:
		return "not found"
	case StatusIllegalOperation:
		return "illegal operation"
	case StatusNotImplemented:
		return "not implemented"
	case StatusUnexpected:
		return "unexpected"
	case StatusOutOfMemory:
		return "out of memory"
	case StatusDetachedObject:
		return "detached object"
	case StatusPassthrough:
		return "passthrough"
	}
	return fmt.Sprintf("unknown status %d", int32(s))
}

type StatusError struct {
	Code Status
	// HostCode carries an arbitrary host status for StatusPassthrough.
	HostCode int32
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func statusError(code Status, format string, args ...any) *StatusError {
	return &StatusError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func invalidArgument(format string, args ...any) *StatusError {
	return statusError(StatusInvalidArgument, format, args...)
}

func notFound(format string, args ...any) *StatusError {
	return statusError(StatusNotFound, format, args...)
}

func illegalOperation(format string, args ...any) *StatusError {
	return statusError(StatusIllegalOperation, format, args...)
}

func notImplemented(format string, args ...any) *StatusError {
	return statusError(StatusNotImplemented, format, args...)
}

func unexpected(format string, args ...any) *StatusError {
	return statusError(StatusUnexpected, format, args...)
}

func detachedObject(format string, args ...any) *StatusError {
	return statusError(StatusDetachedObject, format, args...)
}

// errEndOfSequence is the benign "no more elements" signal used during
// enumeration. It is recovered locally and never crosses the host boundary.
var errEndOfSequence = errors.New("end of sequence")

// IsEndOfSequence reports whether err is the end-of-sequence signal.
func IsEndOfSequence(err error) bool {
	return errors.Is(err, errEndOfSequence)
}

// AsStatus maps any error raised inside the binding layer onto the status
// channel. Errors that are not already a StatusError cross as passthrough
// with their message preserved.
func AsStatus(err error) *StatusError {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se
	}
	return &StatusError{Code: StatusPassthrough, Message: err.Error()}
}
