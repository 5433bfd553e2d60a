package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ToolFunc handles one named tool.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ErrInvalidArguments marks a caller mistake in tool arguments. Handlers wrap
// it so the server can answer 400 instead of 500.
var ErrInvalidArguments = errors.New("invalid arguments")

// Handler serves the tools/call endpoint for a fixed set of tools.
type Handler struct {
	tools map[string]ToolFunc
}

// NewHandler creates a handler for the given tools.
func NewHandler(tools map[string]ToolFunc) *Handler {
	return &Handler{tools: tools}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, CodeInvalidRequest, "method not allowed")
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Method != "" && req.Method != MethodToolsCall {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, fmt.Sprintf("unsupported method %q", req.Method))
		return
	}

	fn, ok := h.tools[req.Params.Name]
	if !ok {
		writeError(w, http.StatusNotFound, CodeMethodNotFound, fmt.Sprintf("unknown tool %q", req.Params.Name))
		return
	}

	args := req.Params.Arguments
	if args == nil {
		args = map[string]any{}
	}

	result, err := fn(r.Context(), args)
	if err != nil {
		if errors.Is(err, ErrInvalidArguments) {
			writeError(w, http.StatusBadRequest, CodeInvalidParams, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, CodeInternal, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, Response{Result: result})
}

func writeError(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, Response{Error: &RPCError{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
