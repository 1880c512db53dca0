package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested task or sub-item is absent or owned
// by someone else. The two cases are deliberately indistinguishable so
// existence never leaks to non-owners.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed or missing input rejected at the store
// boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}
