package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/gateway"
	"github.com/joss/aiden/internal/logging"
	"github.com/joss/aiden/internal/registry"
	"github.com/joss/aiden/internal/render"
)

// inProcessGateway wires a gateway for one-shot commands. Failure events go
// to the sqlite store when AUDIT_DB is set so `aiden events` can show them.
func inProcessGateway() (*gateway.Gateway, audit.Store, error) {
	store, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	gw, err := gateway.FromConfig(cfg, logging.New("cli"), store, nil)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return gw, store, nil
}

func queryCmd() *cobra.Command {
	var noRAG, noHA bool

	cmd := &cobra.Command{
		Use:   "query TEXT...",
		Short: "Ask a question with gathered context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gw, store, err := inProcessGateway()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signalContext()
			defer cancel()
			ctx = logging.WithRequestID(ctx, "")

			res := gw.Query(ctx, strings.Join(args, " "), !noRAG, !noHA)
			fmt.Print(render.New(pretty).Query(res))
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRAG, "no-rag", false, "Skip document retrieval")
	cmd.Flags().BoolVar(&noHA, "no-ha", false, "Skip home-environment state")
	return cmd
}

func callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call TOOL [JSON]",
		Short: "Pass a tool call through to its backend",
		Long: `Invoke TOOL on the backend owning its prefix (text before the first "_").
JSON is the arguments object, for example:

  aiden call ha_get_state '{"entity_id":"light.kitchen"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var raw string
			if len(args) == 2 {
				raw = args[1]
			}
			toolArgs, err := parseArguments(raw)
			if err != nil {
				return err
			}

			gw, store, err := inProcessGateway()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := signalContext()
			defer cancel()

			result, err := gw.Invoke(logging.WithRequestID(ctx, ""), args[0], toolArgs)
			if err != nil {
				if registry.IsUnknownBackend(err) {
					return fmt.Errorf("%w (registered: %s)", err, strings.Join(gw.Prefixes(), ", "))
				}
				return err
			}
			fmt.Print(render.New(pretty).ToolResult(args[0], result))
			return nil
		},
	}
}

func transcribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Send raw audio to the Wyoming backend",
		Long:  `Send FILE (or "-" for stdin) as one frame and print the transcription.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var audio []byte
			var err error
			if args[0] == "-" {
				audio, err = io.ReadAll(os.Stdin)
			} else {
				audio, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read audio: %w", err)
			}

			client, err := wyomingClient()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			res, err := client.Transcribe(ctx, audio)
			if err != nil {
				return fmt.Errorf("transcribe: %w", err)
			}
			fmt.Print(render.New(pretty).Transcription(res))
			return nil
		},
	}
}

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check that the Wyoming backend accepts connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := wyomingClient()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			res := client.Probe(ctx)
			fmt.Print(render.New(pretty).Probe(res))
			if !res.Connected {
				os.Exit(1)
			}
			return nil
		},
	}
}
