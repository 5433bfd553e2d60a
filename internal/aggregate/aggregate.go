// Package aggregate fans a query out to context sources and assembles their
// answers into one context blob.
//
// Sources run concurrently, each under its own timeout. A source that fails,
// times out or panics contributes no section; the failure is logged, counted
// and recorded as an audit event. Sections are always returned in the order
// the sources were declared, never in completion order.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/source"
)

// DefaultTimeout is the per-source budget when none is configured.
const DefaultTimeout = 10 * time.Second

// ErrDuplicateSource is returned when two sources share a kind.
var ErrDuplicateSource = errors.New("duplicate source kind")

// Section is one labelled block of context.
type Section struct {
	Kind  source.Kind
	Label string
	Body  string
}

// Failure describes a source that contributed nothing because it failed.
type Failure struct {
	Kind     source.Kind
	Label    string
	Err      error
	Timeout  bool
	Duration time.Duration
}

// Context is the result of one aggregation.
type Context struct {
	Sections []Section
	Failures []Failure
}

// String renders the sections as "Label:\nBody" blocks separated by a blank
// line.
func (c *Context) String() string {
	if c == nil {
		return ""
	}
	parts := make([]string, 0, len(c.Sections))
	for _, s := range c.Sections {
		parts = append(parts, s.Label+":\n"+s.Body)
	}
	return strings.Join(parts, "\n\n")
}

// Empty reports whether no source contributed.
func (c *Context) Empty() bool {
	return c == nil || len(c.Sections) == 0
}

// Aggregator runs a fixed, ordered set of sources.
type Aggregator struct {
	sources  []source.Source
	timeout  time.Duration
	logger   *logging.Logger
	recorder audit.Recorder
	metrics  *metrics.Metrics
	recovery *logging.RecoveryHandler
	tracer   trace.Tracer
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTimeout sets the per-source budget.
func WithTimeout(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithRecorder sets where failure events go.
func WithRecorder(r audit.Recorder) Option {
	return func(a *Aggregator) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithMetrics sets the counters updated on failure.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Aggregator) {
		a.metrics = m
	}
}

// New creates an aggregator over sources, in declaration order.
func New(sources []source.Source, opts ...Option) (*Aggregator, error) {
	seen := make(map[source.Kind]bool, len(sources))
	for _, s := range sources {
		if seen[s.Kind()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, s.Kind())
		}
		seen[s.Kind()] = true
	}

	a := &Aggregator{
		sources:  append([]source.Source(nil), sources...),
		timeout:  DefaultTimeout,
		logger:   logging.Discard(),
		recorder: audit.Nop{},
		tracer:   otel.Tracer("github.com/joss/aiden/internal/aggregate"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.recovery = logging.NewRecoveryHandler("aggregate", a.logger)
	return a, nil
}

// Kinds returns the declared source kinds in order.
func (a *Aggregator) Kinds() []source.Kind {
	kinds := make([]source.Kind, len(a.sources))
	for i, s := range a.sources {
		kinds[i] = s.Kind()
	}
	return kinds
}

// Timeout returns the per-source budget.
func (a *Aggregator) Timeout() time.Duration {
	return a.timeout
}

type outcome struct {
	body     string
	err      error
	timeout  bool
	duration time.Duration
	ran      bool
}

// Aggregate fetches every enabled source concurrently and returns their
// non-empty answers in declaration order. It never fails; failed sources are
// reported in Context.Failures.
func (a *Aggregator) Aggregate(ctx context.Context, query string, enabled map[source.Kind]bool) *Context {
	ctx, span := a.tracer.Start(ctx, "aggregate.Aggregate")
	defer span.End()

	results := make([]outcome, len(a.sources))

	var g errgroup.Group
	for i, src := range a.sources {
		if !enabled[src.Kind()] {
			continue
		}
		g.Go(func() error {
			results[i] = a.fetch(ctx, src, query)
			return nil
		})
	}
	g.Wait()

	out := &Context{}
	for i, src := range a.sources {
		r := results[i]
		if !r.ran {
			continue
		}
		if r.err != nil {
			out.Failures = append(out.Failures, Failure{
				Kind:     src.Kind(),
				Label:    src.Label(),
				Err:      r.err,
				Timeout:  r.timeout,
				Duration: r.duration,
			})
			continue
		}
		if strings.TrimSpace(r.body) == "" {
			continue
		}
		out.Sections = append(out.Sections, Section{Kind: src.Kind(), Label: src.Label(), Body: r.body})
	}

	span.SetAttributes(
		attribute.Int("aggregate.sections", len(out.Sections)),
		attribute.Int("aggregate.failures", len(out.Failures)),
	)
	return out
}

func (a *Aggregator) fetch(ctx context.Context, src source.Source, query string) outcome {
	ctx, span := a.tracer.Start(ctx, "aggregate.Fetch", trace.WithAttributes(
		attribute.String("source.kind", string(src.Kind())),
	))
	defer span.End()

	start := time.Now()
	fctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type reply struct {
		body string
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		var body string
		err := a.recovery.WrapError(func() error {
			var ferr error
			body, ferr = src.Fetch(fctx, query)
			return ferr
		})
		done <- reply{body: body, err: err}
	}()

	var r outcome
	r.ran = true
	select {
	case rep := <-done:
		r.body, r.err = rep.body, rep.err
	case <-fctx.Done():
		r.err = fctx.Err()
	}
	r.duration = time.Since(start)

	if r.err == nil {
		return r
	}
	r.timeout = errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil
	if r.timeout {
		r.err = fmt.Errorf("%s exceeded %s: %w", src.Kind(), a.timeout, r.err)
	}

	span.RecordError(r.err)
	span.SetStatus(codes.Error, r.err.Error())
	a.report(ctx, src, r)
	return r
}

func (a *Aggregator) report(ctx context.Context, src source.Source, r outcome) {
	status := audit.StatusError
	if r.timeout {
		status = audit.StatusTimeout
	}

	a.logger.FromContext(ctx).Warn("source_failed", map[string]any{
		"source":      string(src.Kind()),
		"timeout":     r.timeout,
		"duration_ms": r.duration.Milliseconds(),
	}, r.err)

	if a.metrics != nil {
		a.metrics.RecordSourceFailure(r.timeout)
	}

	e := audit.NewEvent(audit.CategorySource, string(src.Kind()), status, r.err, r.duration)
	e.RequestID = logging.GetRequestID(ctx)
	if err := a.recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		a.logger.FromContext(ctx).Error("audit_record_failed", map[string]any{
			"source": string(src.Kind()),
		}, err)
	}
}
