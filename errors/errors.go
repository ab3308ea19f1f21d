package errors

import "fmt"

// DriverError is the error surface of every failure this module reports. Each
// error carries one of the sentinel [StorageError] kinds so callers can match
// with errors.Is regardless of how much context was layered on top.
type DriverError interface {
	error
	WithMessage(message string) DriverError
	WrapError(err error) DriverError
}

// -----------------------------------------------------------------------------

type wrappedError struct {
	message string
	kind    StorageError
	cause   error
}

// Error implements the `error` interface.
func (e wrappedError) Error() string {
	return e.message
}

func (e wrappedError) WithMessage(message string) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.message, message),
		kind:    e.kind,
		cause:   e,
	}
}

func (e wrappedError) WrapError(err error) DriverError {
	return wrappedError{
		message: fmt.Sprintf("%s: %s", e.message, err.Error()),
		kind:    e.kind,
		cause:   err,
	}
}

func (e wrappedError) Unwrap() error {
	return e.cause
}

// Is makes errors.Is(err, kind) hold for the sentinel kind the error was
// built from, in addition to whatever the cause chain matches.
func (e wrappedError) Is(target error) bool {
	return target == e.kind
}
