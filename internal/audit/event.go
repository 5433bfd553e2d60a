// Package audit records failure events that the gateway recovers from
// locally: a context source that failed or timed out, a degraded completion,
// a tool call that never reached its backend.
//
// These failures never reach the HTTP caller as errors, so the event log is
// where operators find them.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Category represents the kind of operation that failed.
type Category string

const (
	CategorySource        Category = "source"
	CategoryCompletion    Category = "completion"
	CategoryTool          Category = "tool"
	CategoryTranscription Category = "transcription"
)

// Status represents the outcome of an operation.
type Status string

const (
	StatusError    Status = "error"
	StatusTimeout  Status = "timeout"
	StatusDegraded Status = "degraded"
)

// Event is a single recorded failure.
type Event struct {
	EventID      string    `json:"event_id"`
	RequestID    string    `json:"request_id,omitempty"`
	Category     Category  `json:"category"`
	Operation    string    `json:"operation"`
	Status       Status    `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	At           time.Time `json:"at"`
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(category Category, operation string, status Status, err error, duration time.Duration) *Event {
	e := &Event{
		EventID:    uuid.New().String(),
		Category:   category,
		Operation:  operation,
		Status:     status,
		DurationMs: duration.Milliseconds(),
		At:         time.Now().UTC(),
	}
	if err != nil {
		e.ErrorMessage = err.Error()
	}
	return e
}

// Recorder accepts events.
type Recorder interface {
	Record(ctx context.Context, e *Event) error
}

// Store records events and serves the most recent ones back.
type Store interface {
	Recorder
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(ctx context.Context, e *Event) error { return nil }
