package fscore

import "fmt"

// DiskoError is a sentinel error, modeled as a string so that comparisons
// against it survive wrapping. It satisfies DriverError directly; call
// WithMessage or WrapError to attach context without losing the sentinel
// for errors.Is-style comparisons against the original value.
type DiskoError string

func (e DiskoError) Error() string { return string(e) }

func (e DiskoError) WithMessage(message string) DriverError {
	return contextualError{message: fmt.Sprintf("%s: %s", string(e), message), cause: e, sentinel: e}
}

func (e DiskoError) WrapError(err error) DriverError {
	return contextualError{message: fmt.Sprintf("%s: %s", string(e), err.Error()), cause: err, sentinel: e}
}

// Unwrap returns nil: a bare sentinel wraps nothing.
func (e DiskoError) Unwrap() error { return nil }

// The sentinel errors corresponding to the taxonomy in spec §7.
const (
	ErrInvalidArgument     = DiskoError("invalid argument")
	ErrFileSystemCorrupted = DiskoError("structure needs cleaning")
	ErrNoSpaceOnDevice     = DiskoError("no space left on device")
	ErrNotFound            = DiskoError("no such file or directory")
	ErrNotADirectory       = DiskoError("not a directory")
	ErrIsADirectory        = DiskoError("is a directory")
	ErrDirectoryNotEmpty   = DiskoError("directory not empty")
	ErrNotSupported        = DiskoError("operation not supported")
	ErrExists              = DiskoError("file exists")
	ErrReadOnlyFileSystem  = DiskoError("read-only file system")
	ErrIOFailed            = DiskoError("input/output error")
	ErrNameTooLong         = DiskoError("file name too long")
)

// DriverError is the error type every filesystem operation in this module
// returns. It always carries the original sentinel or cause so callers can
// still use errors.Is against the package-level Err* constants.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
	Unwrap() error
}

type contextualError struct {
	message  string
	cause    error
	sentinel DiskoError
}

func (e contextualError) Error() string { return e.message }

func (e contextualError) WithMessage(message string) DriverError {
	return contextualError{message: fmt.Sprintf("%s: %s", e.message, message), cause: e.cause, sentinel: e.sentinel}
}

func (e contextualError) WrapError(err error) DriverError {
	return contextualError{message: fmt.Sprintf("%s: %s", e.message, err.Error()), cause: err, sentinel: e.sentinel}
}

func (e contextualError) Unwrap() error { return e.cause }

// Is matches the sentinel the error was built from, even after WrapError
// replaced the cause.
func (e contextualError) Is(target error) bool {
	s, ok := target.(DiskoError)
	return ok && e.sentinel != "" && s == e.sentinel
}

// CastToDriverError normalizes a plain error into a DriverError, wrapping it
// in ErrIOFailed if it isn't already one. A nil error stays nil.
func CastToDriverError(err error) DriverError {
	if err == nil {
		return nil
	}
	if driverErr, ok := err.(DriverError); ok {
		return driverErr
	}
	return ErrIOFailed.WrapError(err)
}
