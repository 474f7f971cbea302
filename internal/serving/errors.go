package serving

import (
	"errors"
	"fmt"
)

// validationError marks requests that are structurally unusable (no messages,
// no content, malformed parts). The HTTP layer maps it to 422.
type validationError struct{ msg string }

func (e validationError) Error() string { return e.msg }

// ErrValidation builds a request-validation error.
func ErrValidation(format string, args ...any) error {
	return validationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request-validation error.
func IsValidation(err error) bool {
	var ve validationError
	return errors.As(err, &ve)
}
