package protocol

import (
	"errors"
	"fmt"
)

// ErrProtocol marks a malformed or incomplete frame.
var ErrProtocol = errors.New("protocol error")

// Reasons reported by Error.
const (
	ReasonShortHeader = "short header"
	ReasonTruncated   = "truncated payload"
	ReasonTooLarge    = "frame too large"
)

// Error describes a framing failure. Want and Got are byte counts; for
// ReasonTooLarge Got carries the configured limit.
type Error struct {
	Reason string
	Want   int
	Got    int
}

func (e *Error) Error() string {
	switch e.Reason {
	case ReasonTooLarge:
		return fmt.Sprintf("protocol error: %s (%d bytes, limit %d)", e.Reason, e.Want, e.Got)
	default:
		return fmt.Sprintf("protocol error: %s (got %d of %d bytes)", e.Reason, e.Got, e.Want)
	}
}

func (e *Error) Unwrap() error {
	return ErrProtocol
}

// IsProtocol checks if an error is a framing error.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrProtocol)
}

// Reason returns the framing failure reason, or "" when err is not a
// protocol error.
func Reason(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Reason
	}
	return ""
}
