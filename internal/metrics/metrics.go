// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics holds gateway counters. The zero value is not usable; call New.
type Metrics struct {
	// Query path
	Queries           atomic.Int64
	DegradedResponses atomic.Int64
	SourceFailures    atomic.Int64
	SourceTimeouts    atomic.Int64

	// Tool pass-through
	ToolCalls      atomic.Int64
	ToolCallErrors atomic.Int64
	UnknownBackend atomic.Int64

	// Wire client
	Transcriptions      atomic.Int64
	TranscriptionErrors atomic.Int64

	// Timing (last operation duration in ms)
	LastCompletionDurationMs atomic.Int64
	LastQueryDurationMs      atomic.Int64

	startTime time.Time
}

// New creates a metrics set whose uptime starts now.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordQuery records a served query.
func (m *Metrics) RecordQuery(degraded bool, durationMs int64) {
	m.Queries.Add(1)
	if degraded {
		m.DegradedResponses.Add(1)
	}
	m.LastQueryDurationMs.Store(durationMs)
}

// RecordSourceFailure records a context source that contributed nothing
// because it failed.
func (m *Metrics) RecordSourceFailure(timeout bool) {
	m.SourceFailures.Add(1)
	if timeout {
		m.SourceTimeouts.Add(1)
	}
}

// RecordCompletion records a completion call's latency.
func (m *Metrics) RecordCompletion(durationMs int64) {
	m.LastCompletionDurationMs.Store(durationMs)
}

// RecordToolCall records a tool invocation that reached a backend.
func (m *Metrics) RecordToolCall(success bool) {
	m.ToolCalls.Add(1)
	if !success {
		m.ToolCallErrors.Add(1)
	}
}

// RecordUnknownBackend records a tool name with no registered prefix.
func (m *Metrics) RecordUnknownBackend() {
	m.UnknownBackend.Add(1)
}

// RecordTranscription records a wire exchange.
func (m *Metrics) RecordTranscription(success bool) {
	m.Transcriptions.Add(1)
	if !success {
		m.TranscriptionErrors.Add(1)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		m.WriteTo(w)
	}
}

type sample struct {
	name, help, kind string
	value            int64
}

// WriteTo renders the metrics in Prometheus text exposition format.
func (m *Metrics) WriteTo(w io.Writer) (int64, error) {
	var total int64

	n, err := fmt.Fprintf(w, "# HELP aiden_uptime_seconds Time since the process started\n"+
		"# TYPE aiden_uptime_seconds gauge\n"+
		"aiden_uptime_seconds %.2f\n", time.Since(m.startTime).Seconds())
	total += int64(n)
	if err != nil {
		return total, err
	}

	samples := []sample{
		{"aiden_queries_total", "Total queries served", "counter", m.Queries.Load()},
		{"aiden_degraded_responses_total", "Queries answered with a fallback response", "counter", m.DegradedResponses.Load()},
		{"aiden_source_failures_total", "Context source fetches that failed", "counter", m.SourceFailures.Load()},
		{"aiden_source_timeouts_total", "Context source fetches that exceeded their budget", "counter", m.SourceTimeouts.Load()},
		{"aiden_tool_calls_total", "Tool calls forwarded to a backend", "counter", m.ToolCalls.Load()},
		{"aiden_tool_call_errors_total", "Tool calls that failed upstream", "counter", m.ToolCallErrors.Load()},
		{"aiden_unknown_backend_total", "Tool calls rejected for an unregistered prefix", "counter", m.UnknownBackend.Load()},
		{"aiden_transcriptions_total", "Wire transcription exchanges", "counter", m.Transcriptions.Load()},
		{"aiden_transcription_errors_total", "Wire transcription exchanges that failed", "counter", m.TranscriptionErrors.Load()},
		{"aiden_last_completion_duration_ms", "Last completion call duration", "gauge", m.LastCompletionDurationMs.Load()},
		{"aiden_last_query_duration_ms", "Last query duration", "gauge", m.LastQueryDurationMs.Load()},
	}

	for _, s := range samples {
		n, err := fmt.Fprintf(w, "\n# HELP %s %s\n# TYPE %s %s\n%s %d\n", s.name, s.help, s.name, s.kind, s.name, s.value)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
