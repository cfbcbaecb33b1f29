package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation: a required field is missing or malformed; nothing was mutated.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound: no matching conversation record.
	ErrNotFound = errors.New("not found")
)

// DeliveryError wraps any failed call to an external system. Never retried.
type DeliveryError struct {
	System   string
	Endpoint string
	Status   int
	Err      error
}

func (e *DeliveryError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d", e.System, e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.System, e.Endpoint, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
