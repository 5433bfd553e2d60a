package wyoming

import (
	"errors"
	"fmt"
	"time"
)

// Common client errors.
var (
	// ErrTimeout indicates the connect or exchange exceeded its budget.
	ErrTimeout = errors.New("wyoming timeout")

	// ErrConnection indicates a socket-level failure other than a timeout.
	ErrConnection = errors.New("wyoming connection error")

	// ErrInvalidText indicates the response payload was not UTF-8.
	ErrInvalidText = errors.New("wyoming response is not valid utf-8")
)

// TimeoutError reports which step ran out of time.
type TimeoutError struct {
	Op     string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("wyoming %s: timed out after %v", e.Op, e.Budget)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// ConnError wraps a transport failure.
type ConnError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("wyoming %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnError) Unwrap() []error {
	return []error{ErrConnection, e.Err}
}

// IsTimeout checks if an error is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
