// Package voice serves the transcription backend's tools over the generic
// tool-call interface:
//
//	voice_transcribe {audio_base64} -> {text, success, error?}
//	voice_info       {}             -> {host, port, status}
//	voice_probe      {}             -> {connected, host, port, error?}
//
// Transcription failures are reported in the result with success=false, not
// as HTTP errors, so callers always get a structured answer.
package voice

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/mcp"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/wyoming"
)

// Tool names.
const (
	ToolTranscribe = "voice_transcribe"
	ToolInfo       = "voice_info"
	ToolProbe      = "voice_probe"
)

// Transcriber is the subset of *wyoming.Client the service needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (*wyoming.Result, error)
	Probe(ctx context.Context) wyoming.ProbeResult
	Host() string
	Port() int
}

// Verify wyoming.Client implements Transcriber
var _ Transcriber = (*wyoming.Client)(nil)

// TranscribeResult is the voice_transcribe answer.
type TranscribeResult struct {
	Text    string `json:"text"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Info is the voice_info answer.
type Info struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Status string `json:"status"`
}

// Service implements the voice tools.
type Service struct {
	client   Transcriber
	logger   *logging.Logger
	recorder audit.Recorder
	metrics  *metrics.Metrics
}

// NewService creates the voice tools over client. logger, recorder and m may
// be nil.
func NewService(client Transcriber, logger *logging.Logger, recorder audit.Recorder, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if recorder == nil {
		recorder = audit.Nop{}
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{client: client, logger: logger, recorder: recorder, metrics: m}
}

// Tools returns the tool table.
func (s *Service) Tools() map[string]mcp.ToolFunc {
	return map[string]mcp.ToolFunc{
		ToolTranscribe: s.transcribe,
		ToolInfo:       s.info,
		ToolProbe:      s.probe,
	}
}

// Handler serves POST /tools/call and GET /healthz.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /"+mcp.CallPath, mcp.NewHandler(s.Tools()))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}` + "\n"))
	})
	mux.HandleFunc("GET /metrics", s.metrics.Handler())
	return mux
}

func (s *Service) transcribe(ctx context.Context, args map[string]any) (any, error) {
	encoded, ok := args["audio_base64"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: audio_base64 must be a string", mcp.ErrInvalidArguments)
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return TranscribeResult{Error: fmt.Sprintf("decode audio: %v", err)}, nil
	}

	start := time.Now()
	res, err := s.client.Transcribe(ctx, audio)
	s.metrics.RecordTranscription(err == nil)
	s.logger.FromContext(ctx).TimedEvent("transcribe", start, map[string]any{
		"audio_bytes": len(audio),
	}, err)

	if err != nil {
		status := audit.StatusError
		if wyoming.IsTimeout(err) {
			status = audit.StatusTimeout
		}
		e := audit.NewEvent(audit.CategoryTranscription, ToolTranscribe, status, err, time.Since(start))
		e.RequestID = logging.GetRequestID(ctx)
		if rerr := s.recorder.Record(context.WithoutCancel(ctx), e); rerr != nil {
			s.logger.Error("audit_record_failed", nil, rerr)
		}
		return TranscribeResult{Error: err.Error()}, nil
	}
	return TranscribeResult{Text: res.Text, Success: true}, nil
}

func (s *Service) info(ctx context.Context, args map[string]any) (any, error) {
	return Info{Host: s.client.Host(), Port: s.client.Port(), Status: "configured"}, nil
}

func (s *Service) probe(ctx context.Context, args map[string]any) (any, error) {
	res := s.client.Probe(ctx)
	if !res.Connected {
		s.logger.FromContext(ctx).Warn("probe_failed", map[string]any{
			"host": res.Host,
			"port": res.Port,
		}, errors.New(res.Error))
	}
	return res, nil
}
