package engine

import "fmt"

// generationError signals a failed generation on a still-usable instance.
// The request fails; the slot stays in service.
type generationError struct{ msg string }

func (e generationError) Error() string { return "generation failed: " + e.msg }

// ErrGeneration constructs a generationError.
func ErrGeneration(msg string) error { return generationError{msg: msg} }

// IsGeneration reports whether err is a per-request engine failure.
func IsGeneration(err error) bool {
	_, ok := err.(generationError)
	return ok
}

// fatalError signals that the engine instance is unusable (process died,
// protocol desync, unacknowledged abort). The owning slot must be retired.
type fatalError struct {
	msg string
	err error
}

func (e fatalError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("engine fatal: %s: %v", e.msg, e.err)
	}
	return "engine fatal: " + e.msg
}

func (e fatalError) Unwrap() error { return e.err }

// ErrFatal constructs a fatalError wrapping cause (cause may be nil).
func ErrFatal(cause error, format string, args ...any) error {
	return fatalError{msg: fmt.Sprintf(format, args...), err: cause}
}

// IsFatal reports whether err means the instance must be taken out of service.
func IsFatal(err error) bool {
	_, ok := err.(fatalError)
	return ok
}

// dependencyUnavailableError signals a backend compiled out of this binary.
type dependencyUnavailableError struct{ msg string }

func (e dependencyUnavailableError) Error() string { return e.msg }

// ErrDependencyUnavailable constructs a dependencyUnavailableError.
func ErrDependencyUnavailable(msg string) error { return dependencyUnavailableError{msg: msg} }

// IsDependencyUnavailable reports whether err indicates a missing runtime dependency.
func IsDependencyUnavailable(err error) bool {
	_, ok := err.(dependencyUnavailableError)
	return ok
}
