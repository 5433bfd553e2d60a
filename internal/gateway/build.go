package gateway

import (
	"fmt"

	"github.com/joss/aiden/internal/aggregate"
	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/completion"
	"github.com/joss/aiden/internal/config"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/mcp"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/registry"
	"github.com/joss/aiden/internal/source"
)

// FromConfig wires a gateway from cfg. The tool-call client, context sources,
// aggregator, forwarder and registry are all built here.
func FromConfig(cfg *config.Config, logger *logging.Logger, recorder audit.Recorder, m *metrics.Metrics) (*Gateway, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	if m == nil {
		m = metrics.New()
	}

	reg, err := registry.New(cfg.Backends()...)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}

	caller := mcp.NewClient(cfg.ToolTimeout)

	sources := []source.Source{
		source.NewRetrieval(caller, cfg.ChromaURL, cfg.RAGResults),
		source.NewEnvironment(caller, cfg.HAURL, cfg.HAStateLimit),
	}
	agg, err := aggregate.New(sources,
		aggregate.WithTimeout(cfg.SourceTimeout),
		aggregate.WithLogger(logger),
		aggregate.WithRecorder(recorder),
		aggregate.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("build aggregator: %w", err)
	}

	fwd, err := completion.NewOpenRouter(cfg.APIKey, cfg.BaseURL, completion.Options{
		Model:    cfg.Model,
		Timeout:  cfg.CompletionTimeout,
		Snippet:  cfg.ContextSnippet,
		Logger:   logger,
		Recorder: recorder,
		Metrics:  m,
	})
	if err != nil {
		return nil, fmt.Errorf("build forwarder: %w", err)
	}

	return New(Deps{
		Aggregator: agg,
		Completer:  fwd,
		Registry:   reg,
		Caller:     caller,
		Logger:     logger,
		Recorder:   recorder,
		Metrics:    m,
	}), nil
}
