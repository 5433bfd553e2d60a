// Package source provides the context sources the gateway can consult before
// calling the completion endpoint.
//
// A source turns a query into a block of supplementary text. Each source caps
// its own output (document count, entity count) before returning; callers do
// not re-truncate.
package source

import (
	"context"
)

// Kind identifies a source.
type Kind string

const (
	KindRetrieval   Kind = "retrieval"
	KindEnvironment Kind = "environment"
)

// Source fetches context for a query. An empty string with a nil error means
// the source had nothing to contribute.
type Source interface {
	Kind() Kind
	Label() string
	Fetch(ctx context.Context, query string) (string, error)
}
