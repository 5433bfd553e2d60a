// Package registry maps tool-name prefixes to backend base addresses.
//
// Dispatch is prefix-based, not a full-name match. The lookup key is the text
// before the first underscore in the tool name, so chroma_query_documents
// resolves through the "chroma" backend. Every tool that should be reachable
// through the gateway must therefore be named "<prefix>_<tool>". A name with no
// underscore, or one that starts with an underscore, never resolves.
//
// A Registry is built once at startup and is read-only afterwards; it needs no
// locking.
package registry

import (
	"fmt"
	"net/url"
	"strings"
)

// Separator splits the backend prefix from the rest of a tool name.
const Separator = "_"

// Backend is a named tool server.
type Backend struct {
	Prefix  string
	BaseURL *url.URL
}

// Registry resolves tool names to backends.
type Registry struct {
	backends map[string]Backend
	order    []string
}

// New builds a registry, rejecting empty, malformed and duplicate prefixes.
func New(backends ...Backend) (*Registry, error) {
	r := &Registry{
		backends: make(map[string]Backend, len(backends)),
		order:    make([]string, 0, len(backends)),
	}

	for _, b := range backends {
		if b.Prefix == "" || strings.Contains(b.Prefix, Separator) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPrefix, b.Prefix)
		}
		if b.BaseURL == nil || b.BaseURL.Host == "" {
			return nil, fmt.Errorf("%w: backend %q has no base address", ErrInvalidPrefix, b.Prefix)
		}
		if _, exists := r.backends[b.Prefix]; exists {
			return nil, &DuplicatePrefixError{Prefix: b.Prefix}
		}
		r.backends[b.Prefix] = b
		r.order = append(r.order, b.Prefix)
	}

	return r, nil
}

// Resolve returns the backend that owns toolName.
func (r *Registry) Resolve(toolName string) (Backend, error) {
	prefix, ok := PrefixOf(toolName)
	if !ok {
		return Backend{}, &UnknownBackendError{Tool: toolName}
	}
	b, ok := r.backends[prefix]
	if !ok {
		return Backend{}, &UnknownBackendError{Tool: toolName, Prefix: prefix}
	}
	return b, nil
}

// Lookup returns the backend registered under prefix.
func (r *Registry) Lookup(prefix string) (Backend, bool) {
	b, ok := r.backends[prefix]
	return b, ok
}

// Prefixes returns registered prefixes in declaration order.
func (r *Registry) Prefixes() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// PrefixOf extracts the dispatch key from a tool name.
func PrefixOf(toolName string) (string, bool) {
	prefix, _, found := strings.Cut(toolName, Separator)
	if !found || prefix == "" {
		return "", false
	}
	return prefix, true
}
