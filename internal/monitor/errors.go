package monitor

import (
	"errors"
	"fmt"
)

// ErrLastMonitor is wrapped in a ValidationError when removing the only
// remaining monitor.
var ErrLastMonitor = errors.New("cannot remove the last remaining monitor")

// ValidationError reports a malformed monitor definition or a rejected
// registry mutation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps err unless it already is a ValidationError.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &ValidationError{Err: err}
}

// NotFoundError is returned for operations on an unknown monitor id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("monitor %q not found", e.ID)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
