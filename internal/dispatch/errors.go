package dispatch

import (
	"errors"
	"fmt"
)

// ErrOrderNotFound is returned for lifecycle writes against an unknown order number.
var ErrOrderNotFound = errors.New("order not found")

// ValidationError rejects bad input at the intake boundary. It is surfaced
// verbatim to the submitting UI and never retried automatically.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing or invalid field: %s", e.Field)
}

// IsValidation reports whether err is an intake validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
