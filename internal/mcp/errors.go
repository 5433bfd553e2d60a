package mcp

import (
	"context"
	"errors"
	"fmt"
)

// ErrUpstream indicates a failed or malformed backend response.
var ErrUpstream = errors.New("upstream error")

// UpstreamError describes a backend failure. Status is zero when no HTTP
// response was received.
type UpstreamError struct {
	Backend string
	Tool    string
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("upstream %s %s: status %d: %s", e.Backend, e.Tool, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("upstream %s %s: %v", e.Backend, e.Tool, e.Err)
	default:
		return fmt.Sprintf("upstream %s %s: %s", e.Backend, e.Tool, e.Message)
	}
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUpstream}
	}
	return []error{ErrUpstream, e.Err}
}

// IsUpstream checks if an error came from a backend.
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// IsTimeout checks if a call ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
