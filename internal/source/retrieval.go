package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/joss/aiden/internal/mcp"
)

// Retrieval defaults.
const (
	RetrievalLabel      = "Relevant Documents"
	RetrievalTool       = "query_documents"
	DefaultRetrievalCap = 3
)

// Retrieval queries the document store backend for passages similar to the
// query.
type Retrieval struct {
	caller mcp.Caller
	base   *url.URL
	limit  int
}

// NewRetrieval creates a retrieval source returning at most limit documents.
func NewRetrieval(caller mcp.Caller, base *url.URL, limit int) *Retrieval {
	if limit <= 0 {
		limit = DefaultRetrievalCap
	}
	return &Retrieval{caller: caller, base: base, limit: limit}
}

func (r *Retrieval) Kind() Kind    { return KindRetrieval }
func (r *Retrieval) Label() string { return RetrievalLabel }

// Fetch returns the top documents separated by blank lines.
func (r *Retrieval) Fetch(ctx context.Context, query string) (string, error) {
	raw, err := r.caller.CallTool(ctx, r.base, RetrievalTool, map[string]any{
		"query_text": query,
		"n_results":  r.limit,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		Documents []json.RawMessage `json:"documents"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode %s result: %w", RetrievalTool, err)
	}

	parts := make([]string, 0, r.limit)
	for _, doc := range result.Documents {
		if len(parts) == r.limit {
			break
		}
		var text string
		if json.Unmarshal(doc, &text) != nil || strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}
