// Package completion forwards an aggregated context and a user query to an
// OpenAI-compatible chat completion endpoint.
//
// Complete never fails. A missing credential or an upstream failure produces
// a Result with Degraded set and a text that still surfaces the gathered
// context, so callers can answer something useful.
package completion

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/metrics"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultSnippet = 200

	notConfiguredPrefix = "LLM not configured (OPENROUTER_API_KEY missing). Context gathered: "
	noResponseText      = "No response from LLM"
)

// ChatClient is the subset of the go-openai client the forwarder uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Result is a completion answer. Degraded marks fallback text.
type Result struct {
	Text     string
	Degraded bool
	Err      error
}

// Options configures a Forwarder.
type Options struct {
	// Client talks to the endpoint. Nil means no credential is configured.
	Client   ChatClient
	Model    string
	Timeout  time.Duration
	Snippet  int
	Logger   *logging.Logger
	Recorder audit.Recorder
	Metrics  *metrics.Metrics
}

// Forwarder sends prompts to the completion endpoint.
type Forwarder struct {
	chat     ChatClient
	model    string
	timeout  time.Duration
	snippet  int
	logger   *logging.Logger
	recorder audit.Recorder
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// New creates a forwarder from opts.
func New(opts Options) (*Forwarder, error) {
	if opts.Client != nil && opts.Model == "" {
		return nil, errors.New("model is required")
	}
	f := &Forwarder{
		chat:     opts.Client,
		model:    opts.Model,
		timeout:  opts.Timeout,
		snippet:  opts.Snippet,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		tracer:   otel.Tracer("github.com/joss/aiden/internal/completion"),
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.snippet <= 0 {
		f.snippet = DefaultSnippet
	}
	if f.logger == nil {
		f.logger = logging.Discard()
	}
	if f.recorder == nil {
		f.recorder = audit.Nop{}
	}
	return f, nil
}

// NewOpenRouter builds a forwarder talking to baseURL with apiKey. An empty
// apiKey yields an unconfigured forwarder that only produces degraded
// results.
func NewOpenRouter(apiKey, baseURL string, opts Options) (*Forwarder, error) {
	if apiKey != "" {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		opts.Client = openai.NewClientWithConfig(cfg)
	} else {
		opts.Client = nil
	}
	return New(opts)
}

// Configured reports whether a credential is set.
func (f *Forwarder) Configured() bool {
	return f.chat != nil
}

// Model returns the model identifier.
func (f *Forwarder) Model() string {
	return f.model
}

// Prompt builds the single user message sent to the endpoint.
func Prompt(query, gathered string) string {
	return fmt.Sprintf("Context:\n%s\n\nUser Query: %s\n\nResponse:", gathered, query)
}

// Complete asks the endpoint to answer query using the gathered context.
func (f *Forwarder) Complete(ctx context.Context, query, gathered string) Result {
	if f.chat == nil {
		f.degrade(ctx, ErrConfigurationMissing, 0)
		return Result{
			Text:     notConfiguredPrefix + Snippet(gathered, f.snippet),
			Degraded: true,
			Err:      ErrConfigurationMissing,
		}
	}

	ctx, span := f.tracer.Start(ctx, "completion.Complete", trace.WithAttributes(
		attribute.String("completion.model", f.model),
	))
	defer span.End()

	start := time.Now()
	text, err := f.call(ctx, Prompt(query, gathered))
	elapsed := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCompletion(elapsed.Milliseconds())
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.degrade(ctx, err, elapsed)

		if errors.Is(err, ErrNoChoices) {
			return Result{Text: noResponseText, Degraded: true, Err: err}
		}
		return Result{
			Text:     fmt.Sprintf("LLM error: %v\n\nContext: %s", err, Snippet(gathered, f.snippet)),
			Degraded: true,
			Err:      err,
		}
	}

	f.logger.FromContext(ctx).TimedEvent("completion", start, map[string]any{
		"model": f.model,
	}, nil)
	return Result{Text: text}
}

func (f *Forwarder) call(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	resp, err := f.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%w after %s", ctx.Err(), f.timeout)
		}
		return "", upstream(f.model, err)
	}
	if len(resp.Choices) == 0 {
		return "", upstream(f.model, ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

func (f *Forwarder) degrade(ctx context.Context, err error, elapsed time.Duration) {
	f.logger.FromContext(ctx).Warn("completion_degraded", map[string]any{
		"model":       f.model,
		"duration_ms": elapsed.Milliseconds(),
	}, err)

	e := audit.NewEvent(audit.CategoryCompletion, f.model, audit.StatusDegraded, err, elapsed)
	e.RequestID = logging.GetRequestID(ctx)
	if rerr := f.recorder.Record(context.WithoutCancel(ctx), e); rerr != nil {
		f.logger.FromContext(ctx).Error("audit_record_failed", nil, rerr)
	}
}

// Snippet returns at most n runes of s.
func Snippet(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
