package provider

import (
	"errors"
	"fmt"
)

// TransientError covers network failures and the provider's known
// synchronization lag. Callers retry these within their attempt budget.
type TransientError struct {
	Message string
	cause   error
}

func (e *TransientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("provider transient: %s: %v", e.Message, e.cause)
	}
	return "provider transient: " + e.Message
}

func (e *TransientError) Unwrap() error { return e.cause }

// Transient constructs a retryable provider error.
func Transient(message string, cause error) error {
	return &TransientError{Message: message, cause: cause}
}

// HardError is an explicit, authoritative provider rejection. It is never
// retried; coordinators surface it immediately.
type HardError struct {
	StatusCode int
	Message    string
}

func (e *HardError) Error() string {
	return fmt.Sprintf("provider rejected request (%d): %s", e.StatusCode, e.Message)
}

// Hard constructs a non-retryable provider error.
func Hard(statusCode int, message string) error {
	return &HardError{StatusCode: statusCode, Message: message}
}

// IsTransient reports whether err is a retryable provider failure.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}

// IsHard reports whether err is an authoritative provider rejection.
func IsHard(err error) bool {
	var h *HardError
	return errors.As(err, &h)
}
