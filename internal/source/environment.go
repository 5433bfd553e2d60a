package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/joss/aiden/internal/mcp"
)

// Environment defaults.
const (
	EnvironmentLabel      = "Home Assistant States"
	EnvironmentTool       = "get_states"
	DefaultEnvironmentCap = 10
)

// Environment reads current entity states from the home automation backend.
// The query is not sent; the snapshot is the same for every question.
type Environment struct {
	caller mcp.Caller
	base   *url.URL
	limit  int
}

// NewEnvironment creates an environment source listing at most limit
// entities.
func NewEnvironment(caller mcp.Caller, base *url.URL, limit int) *Environment {
	if limit <= 0 {
		limit = DefaultEnvironmentCap
	}
	return &Environment{caller: caller, base: base, limit: limit}
}

func (e *Environment) Kind() Kind    { return KindEnvironment }
func (e *Environment) Label() string { return EnvironmentLabel }

// Fetch returns one "entity_id: state" line per entity.
func (e *Environment) Fetch(ctx context.Context, query string) (string, error) {
	raw, err := e.caller.CallTool(ctx, e.base, EnvironmentTool, map[string]any{})
	if err != nil {
		return "", err
	}

	states, err := decodeStates(raw)
	if err != nil {
		return "", fmt.Errorf("decode %s result: %w", EnvironmentTool, err)
	}

	if len(states) > e.limit {
		states = states[:e.limit]
	}

	lines := make([]string, 0, len(states))
	for _, s := range states {
		var entity struct {
			EntityID string          `json:"entity_id"`
			State    json.RawMessage `json:"state"`
		}
		if json.Unmarshal(s, &entity) != nil || entity.EntityID == "" {
			continue
		}
		lines = append(lines, entity.EntityID+": "+stateText(entity.State))
	}
	return strings.Join(lines, "\n"), nil
}

// decodeStates accepts either {"states":[...]} or a bare list.
func decodeStates(raw json.RawMessage) ([]json.RawMessage, error) {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		States []json.RawMessage `json:"states"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.States, nil
}

func stateText(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	if len(raw) == 0 {
		return ""
	}
	return string(raw)
}
