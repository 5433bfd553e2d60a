// Package server exposes the gateway over HTTP.
//
//	POST /query      {query, use_rag, use_ha_context} -> {query, context, response, degraded}
//	POST /tool/call  {tool_name, arguments}           -> {result}
//	GET  /healthz                                     -> {ok}
//	GET  /metrics                                     -> Prometheus text
//	GET  /events?limit=N                              -> recent failure events
//
// /query always answers 200 once the request is well formed. /tool/call
// answers 400 for an unregistered tool prefix and 502 when the backend fails.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/gateway"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/registry"
)

const (
	// RequestIDHeader carries the request ID in and out.
	RequestIDHeader = "X-Request-ID"

	DefaultEventLimit = 50
	MaxEventLimit     = 1000

	maxBodyBytes = 32 << 20
)

// Gateway is the subset of *gateway.Gateway the server needs.
type Gateway interface {
	Query(ctx context.Context, text string, useRetrieval, useEnvironment bool) *gateway.QueryResult
	Invoke(ctx context.Context, toolName string, args map[string]any) (json.RawMessage, error)
}

// EventLister serves recent failure events.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// Server provides the gateway HTTP API.
type Server struct {
	gw       Gateway
	events   EventLister
	metrics  *metrics.Metrics
	logger   *logging.Logger
	recovery *logging.RecoveryHandler
	mux      *http.ServeMux
	srv      *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithEvents serves /events from l.
func WithEvents(l EventLister) Option {
	return func(s *Server) { s.events = l }
}

// WithMetrics serves /metrics from m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the request logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a server listening on addr.
func New(addr string, gw Gateway, opts ...Option) *Server {
	s := &Server{
		gw:     gw,
		logger: logging.Discard(),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.recovery = logging.NewRecoveryHandler("server", s.logger)
	s.setupRoutes()

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /query", s.handleQuery)
	s.mux.HandleFunc("POST /tool/call", s.handleToolCall)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /metrics", s.metrics.Handler())
	s.mux.HandleFunc("GET /events", s.handleEvents)
}

// Handler returns the routes wrapped with request ID and panic recovery.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withRecovery(s.mux))
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// ListenAndServe serves until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server_started", map[string]any{"addr": ln.Addr().String()})
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server_stopping", nil)
	return s.srv.Shutdown(ctx)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		err := s.recovery.WrapError(func() error {
			next.ServeHTTP(w, r)
			return nil
		})
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "internal error")
		}
	})
}

type queryRequest struct {
	Query        string `json:"query"`
	UseRAG       *bool  `json:"use_rag"`
	UseHAContext *bool  `json:"use_ha_context"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeDetail(w, http.StatusBadRequest, "query is required")
		return
	}

	res := s.gw.Query(r.Context(), req.Query, boolOr(req.UseRAG, true), boolOr(req.UseHAContext, true))
	writeJSON(w, http.StatusOK, res)
}

type toolCallRequest struct {
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	var req toolCallRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.ToolName) == "" {
		writeDetail(w, http.StatusBadRequest, "tool_name is required")
		return
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	result, err := s.gw.Invoke(r.Context(), req.ToolName, req.Arguments)
	if err != nil {
		if registry.IsUnknownBackend(err) {
			writeDetail(w, http.StatusBadRequest, "Unknown tool service")
			return
		}
		writeDetail(w, http.StatusBadGateway, err.Error())
		return
	}
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"result": result})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := DefaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeDetail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxEventLimit)
	}

	events := []audit.Event{}
	if s.events != nil {
		got, err := s.events.Recent(r.Context(), limit)
		if err != nil {
			s.logger.FromContext(r.Context()).Error("events_read_failed", nil, err)
			writeDetail(w, http.StatusInternalServerError, "read events failed")
			return
		}
		if got != nil {
			events = got
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
