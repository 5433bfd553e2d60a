// Package gateway composes context aggregation, completion forwarding and
// tool pass-through behind two operations: Query and Invoke.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joss/aiden/internal/aggregate"
	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/completion"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/mcp"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/registry"
	"github.com/joss/aiden/internal/source"
)

// Completer answers a query given gathered context.
type Completer interface {
	Complete(ctx context.Context, query, gathered string) completion.Result
}

// Aggregator gathers context for a query.
type Aggregator interface {
	Aggregate(ctx context.Context, query string, enabled map[source.Kind]bool) *aggregate.Context
}

// QueryResult is the answer to Query.
type QueryResult struct {
	Query    string `json:"query"`
	Context  string `json:"context"`
	Response string `json:"response"`
	Degraded bool   `json:"degraded"`

	Sections []aggregate.Section `json:"-"`
	Failures []aggregate.Failure `json:"-"`
}

// Gateway is the externally visible entry point.
type Gateway struct {
	aggregator Aggregator
	completer  Completer
	registry   *registry.Registry
	caller     mcp.Caller
	logger     *logging.Logger
	recorder   audit.Recorder
	metrics    *metrics.Metrics
}

// Deps wires a Gateway. Logger, Recorder and Metrics are optional.
type Deps struct {
	Aggregator Aggregator
	Completer  Completer
	Registry   *registry.Registry
	Caller     mcp.Caller
	Logger     *logging.Logger
	Recorder   audit.Recorder
	Metrics    *metrics.Metrics
}

// New creates a gateway.
func New(d Deps) *Gateway {
	g := &Gateway{
		aggregator: d.Aggregator,
		completer:  d.Completer,
		registry:   d.Registry,
		caller:     d.Caller,
		logger:     d.Logger,
		recorder:   d.Recorder,
		metrics:    d.Metrics,
	}
	if g.logger == nil {
		g.logger = logging.Discard()
	}
	if g.recorder == nil {
		g.recorder = audit.Nop{}
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}
	return g
}

// Query gathers context from the requested sources and asks the completion
// endpoint. It always returns an answer, possibly degraded.
func (g *Gateway) Query(ctx context.Context, text string, useRetrieval, useEnvironment bool) *QueryResult {
	start := time.Now()
	log := g.logger.FromContext(ctx)

	gathered := g.aggregator.Aggregate(ctx, text, map[source.Kind]bool{
		source.KindRetrieval:   useRetrieval,
		source.KindEnvironment: useEnvironment,
	})
	contextText := gathered.String()

	answer := g.completer.Complete(ctx, text, contextText)

	g.metrics.RecordQuery(answer.Degraded, time.Since(start).Milliseconds())
	log.TimedEvent("query", start, map[string]any{
		"use_retrieval":   useRetrieval,
		"use_environment": useEnvironment,
		"sections":        len(gathered.Sections),
		"source_failures": len(gathered.Failures),
		"degraded":        answer.Degraded,
	}, nil)

	return &QueryResult{
		Query:    text,
		Context:  contextText,
		Response: answer.Text,
		Degraded: answer.Degraded,
		Sections: gathered.Sections,
		Failures: gathered.Failures,
	}
}

// Invoke forwards a tool call to the backend owning the tool name's prefix
// and returns the backend's result unchanged. An unregistered prefix returns
// a *registry.UnknownBackendError without contacting any backend.
func (g *Gateway) Invoke(ctx context.Context, toolName string, args map[string]any) (json.RawMessage, error) {
	start := time.Now()
	log := g.logger.FromContext(ctx)

	backend, err := g.registry.Resolve(toolName)
	if err != nil {
		g.metrics.RecordUnknownBackend()
		log.Info("unknown_backend", map[string]any{"tool": toolName})
		return nil, err
	}

	result, err := g.caller.CallTool(ctx, backend.BaseURL, toolName, args)
	g.metrics.RecordToolCall(err == nil)
	log.TimedEvent("tool_call", start, map[string]any{
		"tool":    toolName,
		"backend": backend.Prefix,
	}, err)

	if err != nil {
		status := audit.StatusError
		if mcp.IsTimeout(err) {
			status = audit.StatusTimeout
		}
		e := audit.NewEvent(audit.CategoryTool, toolName, status, err, time.Since(start))
		e.RequestID = logging.GetRequestID(ctx)
		if rerr := g.recorder.Record(context.WithoutCancel(ctx), e); rerr != nil {
			log.Error("audit_record_failed", nil, rerr)
		}
		return nil, err
	}
	return result, nil
}

// Prefixes lists the registered backend prefixes.
func (g *Gateway) Prefixes() []string {
	return g.registry.Prefixes()
}
