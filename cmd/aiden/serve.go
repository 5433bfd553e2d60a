package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/aiden/internal/gateway"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/metrics"
	"github.com/joss/aiden/internal/runtime"
	"github.com/joss/aiden/internal/server"
	"github.com/joss/aiden/internal/voice"
)

func serveCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		Long: `Serve the gateway on MEMORY_PROXY_ADDR:

  POST /query       gather context and answer
  POST /tool/call   pass a tool call through to its backend
  GET  /healthz     liveness
  GET  /metrics     Prometheus counters
  GET  /events      recent failure events`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New("gateway")

			store, err := openStore()
			if err != nil {
				return err
			}

			m := metrics.New()
			gw, err := gateway.FromConfig(cfg, logger, store, m)
			if err != nil {
				store.Close()
				return err
			}

			srv := server.New(cfg.GatewayAddr, gw,
				server.WithEvents(store),
				server.WithMetrics(m),
				server.WithLogger(logger),
			)

			mgr := runtime.NewShutdownManager(shutdownTimeout, logger)
			mgr.RegisterCloser("audit-store", store.Close)
			mgr.Register("http-server", srv.Shutdown)

			logger.Info("gateway_config", map[string]any{
				"addr":                  cfg.GatewayAddr,
				"backends":              gw.Prefixes(),
				"model":                 cfg.Model,
				"completion_enabled":    cfg.CompletionConfigured(),
				"source_timeout_ms":     cfg.SourceTimeout.Milliseconds(),
				"completion_timeout_ms": cfg.CompletionTimeout.Milliseconds(),
			})

			return run(mgr, srv.ListenAndServe)
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", runtime.DefaultShutdownTimeout, "Grace period for in-flight requests")
	return cmd
}

func voiceCmd() *cobra.Command {
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Run the voice tool backend",
		Long: `Serve voice_transcribe, voice_info and voice_probe on VOICE_MCP_ADDR,
relaying audio to the Wyoming backend at WYOMING_HOST:WYOMING_PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.New("voice")

			client, err := wyomingClient()
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}

			svc := voice.NewService(client, logger, store, metrics.New())
			srv := &http.Server{
				Addr:              cfg.VoiceAddr,
				Handler:           svc.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			mgr := runtime.NewShutdownManager(shutdownTimeout, logger)
			mgr.RegisterCloser("audit-store", store.Close)
			mgr.Register("http-server", srv.Shutdown)

			logger.Info("voice_config", map[string]any{
				"addr":    cfg.VoiceAddr,
				"wyoming": cfg.WyomingAddr(),
			})

			return run(mgr, func() error {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", runtime.DefaultShutdownTimeout, "Grace period for in-flight requests")
	return cmd
}

// run serves until a signal arrives or serve fails, then runs the shutdown
// handlers.
func run(mgr *runtime.ShutdownManager, serve func() error) error {
	stop := mgr.ListenForSignals()
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- serve() }()

	select {
	case err := <-errCh:
		mgr.Shutdown()
		if err != nil {
			return err
		}
		return mgr.Err()
	case <-mgr.Context().Done():
		mgr.WaitForShutdown()
		if err := <-errCh; err != nil {
			return err
		}
		return mgr.Err()
	}
}
