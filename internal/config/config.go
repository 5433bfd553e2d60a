// Package config loads the process configuration once at startup.
//
// Load returns an immutable *Config that is passed into every component
// constructor. Nothing in this package caches state; each Load call reads
// the environment again.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/joss/aiden/internal/registry"
)

// Backend prefixes. Tool names dispatched through the gateway begin with
// one of these followed by registry.Separator.
const (
	PrefixHA     = "ha"
	PrefixChroma = "chroma"
	PrefixVoice  = "voice"
)

// MinMaxFrame is the smallest accepted WYOMING_MAX_FRAME.
const MinMaxFrame = 10 << 20

// ErrInvalid is returned when a variable is present but unusable.
var ErrInvalid = errors.New("invalid configuration")

// FieldError describes a single rejected variable.
type FieldError struct {
	Env    string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Env, e.Reason)
	}
	return fmt.Sprintf("%s=%q: %s", e.Env, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalid
}

// raw mirrors the environment before validation.
type raw struct {
	GatewayAddr string `env:"MEMORY_PROXY_ADDR" envDefault:":8104"`
	VoiceAddr   string `env:"VOICE_MCP_ADDR" envDefault:":8103"`

	HAURL     string `env:"HA_MCP_URL" envDefault:"http://localhost:8101"`
	ChromaURL string `env:"CHROMA_MCP_URL" envDefault:"http://localhost:8102"`
	VoiceURL  string `env:"VOICE_MCP_URL" envDefault:"http://localhost:8103"`

	APIKey  string `env:"OPENROUTER_API_KEY"`
	BaseURL string `env:"OPENROUTER_BASE_URL" envDefault:"https://openrouter.ai/api/v1"`
	Model   string `env:"MODEL_NAME" envDefault:"anthropic/claude-3-haiku"`

	WyomingHost string `env:"WYOMING_HOST" envDefault:"wyoming"`
	WyomingPort string `env:"WYOMING_PORT" envDefault:"10300"`

	SourceTimeout     time.Duration `env:"SOURCE_TIMEOUT" envDefault:"10s"`
	ToolTimeout       time.Duration `env:"TOOL_TIMEOUT" envDefault:"30s"`
	CompletionTimeout time.Duration `env:"COMPLETION_TIMEOUT" envDefault:"60s"`
	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"30s"`
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`

	MaxFrame       int `env:"WYOMING_MAX_FRAME" envDefault:"16777216"`
	RAGResults     int `env:"RAG_RESULTS" envDefault:"3"`
	HAStateLimit   int `env:"HA_STATE_LIMIT" envDefault:"10"`
	ContextSnippet int `env:"CONTEXT_SNIPPET" envDefault:"200"`

	AuditDB       string `env:"AUDIT_DB"`
	AuditCapacity int    `env:"AUDIT_CAPACITY" envDefault:"256"`
}

// Config is the validated process configuration.
type Config struct {
	GatewayAddr string
	VoiceAddr   string

	HAURL     *url.URL
	ChromaURL *url.URL
	VoiceURL  *url.URL

	APIKey  string
	BaseURL string
	Model   string

	WyomingHost string
	WyomingPort int

	SourceTimeout     time.Duration
	ToolTimeout       time.Duration
	CompletionTimeout time.Duration
	TranscribeTimeout time.Duration
	ProbeTimeout      time.Duration

	MaxFrame       int
	RAGResults     int
	HAStateLimit   int
	ContextSnippet int

	AuditDB       string
	AuditCapacity int
}

// Load reads and validates the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

// LoadFrom reads and validates the given variables instead of the process
// environment. Unset variables take their defaults.
func LoadFrom(vars map[string]string) (*Config, error) {
	if vars == nil {
		vars = map[string]string{}
	}
	return load(env.Options{Environment: vars})
}

func load(opts env.Options) (*Config, error) {
	var r raw
	if err := env.ParseWithOptions(&r, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return r.validate()
}

func (r *raw) validate() (*Config, error) {
	var errs []error

	cfg := &Config{
		GatewayAddr:       r.GatewayAddr,
		VoiceAddr:         r.VoiceAddr,
		APIKey:            strings.TrimSpace(r.APIKey),
		Model:             r.Model,
		WyomingHost:       strings.TrimSpace(r.WyomingHost),
		SourceTimeout:     r.SourceTimeout,
		ToolTimeout:       r.ToolTimeout,
		CompletionTimeout: r.CompletionTimeout,
		TranscribeTimeout: r.TranscribeTimeout,
		ProbeTimeout:      r.ProbeTimeout,
		MaxFrame:          r.MaxFrame,
		RAGResults:        r.RAGResults,
		HAStateLimit:      r.HAStateLimit,
		ContextSnippet:    r.ContextSnippet,
		AuditDB:           r.AuditDB,
		AuditCapacity:     r.AuditCapacity,
	}

	var err error
	if cfg.HAURL, err = parseURL("HA_MCP_URL", r.HAURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.ChromaURL, err = parseURL("CHROMA_MCP_URL", r.ChromaURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.VoiceURL, err = parseURL("VOICE_MCP_URL", r.VoiceURL); err != nil {
		errs = append(errs, err)
	}
	if base, err := parseURL("OPENROUTER_BASE_URL", r.BaseURL); err != nil {
		errs = append(errs, err)
	} else {
		cfg.BaseURL = strings.TrimRight(base.String(), "/")
	}

	if cfg.Model == "" {
		errs = append(errs, &FieldError{Env: "MODEL_NAME", Reason: "must not be empty"})
	}
	if cfg.WyomingHost == "" {
		errs = append(errs, &FieldError{Env: "WYOMING_HOST", Reason: "must not be empty"})
	}
	port, perr := strconv.Atoi(strings.TrimSpace(r.WyomingPort))
	if perr != nil || port < 1 || port > 65535 {
		errs = append(errs, &FieldError{Env: "WYOMING_PORT", Value: r.WyomingPort, Reason: "must be a port in 1..65535"})
	}
	cfg.WyomingPort = port

	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"SOURCE_TIMEOUT", r.SourceTimeout},
		{"TOOL_TIMEOUT", r.ToolTimeout},
		{"COMPLETION_TIMEOUT", r.CompletionTimeout},
		{"TRANSCRIBE_TIMEOUT", r.TranscribeTimeout},
		{"PROBE_TIMEOUT", r.ProbeTimeout},
	} {
		if d.v <= 0 {
			errs = append(errs, &FieldError{Env: d.name, Value: d.v.String(), Reason: "must be positive"})
		}
	}
	if r.SourceTimeout > 0 && r.CompletionTimeout <= r.SourceTimeout {
		errs = append(errs, &FieldError{
			Env:    "COMPLETION_TIMEOUT",
			Value:  r.CompletionTimeout.String(),
			Reason: "must exceed SOURCE_TIMEOUT (" + r.SourceTimeout.String() + ")",
		})
	}

	for _, n := range []struct {
		name string
		v    int
	}{
		{"RAG_RESULTS", r.RAGResults},
		{"HA_STATE_LIMIT", r.HAStateLimit},
		{"CONTEXT_SNIPPET", r.ContextSnippet},
		{"AUDIT_CAPACITY", r.AuditCapacity},
	} {
		if n.v <= 0 {
			errs = append(errs, &FieldError{Env: n.name, Value: strconv.Itoa(n.v), Reason: "must be positive"})
		}
	}
	if r.MaxFrame < MinMaxFrame {
		errs = append(errs, &FieldError{
			Env:    "WYOMING_MAX_FRAME",
			Value:  strconv.Itoa(r.MaxFrame),
			Reason: fmt.Sprintf("must be at least %d", MinMaxFrame),
		})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func parseURL(name, value string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return nil, &FieldError{Env: name, Value: value, Reason: "not a URL"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &FieldError{Env: name, Value: value, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return nil, &FieldError{Env: name, Value: value, Reason: "missing host"}
	}
	return u, nil
}

// WyomingAddr returns the transcription backend address as host:port.
func (c *Config) WyomingAddr() string {
	return net.JoinHostPort(c.WyomingHost, strconv.Itoa(c.WyomingPort))
}

// CompletionConfigured reports whether a completion credential is set.
func (c *Config) CompletionConfigured() bool {
	return c.APIKey != ""
}

// Backends returns the dispatchable backends in declaration order.
func (c *Config) Backends() []registry.Backend {
	return []registry.Backend{
		{Prefix: PrefixHA, BaseURL: c.HAURL},
		{Prefix: PrefixChroma, BaseURL: c.ChromaURL},
		{Prefix: PrefixVoice, BaseURL: c.VoiceURL},
	}
}
