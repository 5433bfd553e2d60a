// Package logging provides structured JSON logging for aiden components.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event represents a structured log event
type Event struct {
	Timestamp string         `json:"ts"`
	Level     Level          `json:"level"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	RequestID string         `json:"request_id,omitempty"`
	Duration  int64          `json:"duration_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// Logger provides structured logging. Loggers derived with WithRequest share
// the parent's writer and lock.
type Logger struct {
	component string
	requestID string
	out       io.Writer
	mu        *sync.Mutex
}

// New creates a logger for a component writing to stderr.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stderr)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	return &Logger{
		component: component,
		out:       w,
		mu:        &sync.Mutex{},
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter("discard", io.Discard)
}

// WithRequest sets the request context
func (l *Logger) WithRequest(id string) *Logger {
	return &Logger{
		component: l.component,
		requestID: id,
		out:       l.out,
		mu:        l.mu,
	}
}

// FromContext binds the request ID carried by ctx, if any.
func (l *Logger) FromContext(ctx context.Context) *Logger {
	if id := GetRequestID(ctx); id != "" {
		return l.WithRequest(id)
	}
	return l
}

// Component returns the component name.
func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) emit(e Event) {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
	e.Component = l.component
	e.RequestID = l.requestID

	data, err := json.Marshal(e)
	if err != nil {
		data, _ = json.Marshal(Event{
			Timestamp: e.Timestamp,
			Level:     LevelError,
			Component: l.component,
			Event:     "log_marshal_failed",
			Error:     err.Error(),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

// log emits a structured log event
func (l *Logger) log(level Level, event string, extra map[string]any, err error) {
	e := Event{Level: level, Event: event, Extra: extra}
	if err != nil {
		e.Error = err.Error()
	}
	l.emit(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event string, extra map[string]any) {
	l.log(LevelDebug, event, extra, nil)
}

// Info logs an info event
func (l *Logger) Info(event string, extra map[string]any) {
	l.log(LevelInfo, event, extra, nil)
}

// Warn logs a warning event
func (l *Logger) Warn(event string, extra map[string]any, err error) {
	l.log(LevelWarn, event, extra, err)
}

// Error logs an error event
func (l *Logger) Error(event string, extra map[string]any, err error) {
	l.log(LevelError, event, extra, err)
}

// TimedEvent logs an event with duration. A non-nil err raises the level to
// warn.
func (l *Logger) TimedEvent(event string, start time.Time, extra map[string]any, err error) {
	e := Event{
		Level:    LevelInfo,
		Event:    event,
		Duration: time.Since(start).Milliseconds(),
		Extra:    extra,
	}
	if err != nil {
		e.Level = LevelWarn
		e.Error = err.Error()
	}
	l.emit(e)
}
