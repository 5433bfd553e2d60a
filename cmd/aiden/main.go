// Package main provides the aiden CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/aiden/internal/config"
)

var (
	version = "0.1.0"
	cfg     *config.Config
	pretty  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "aiden",
		Short: "Memory proxy: context-aware gateway in front of home and document backends",
		Long: `aiden gathers context from document retrieval and home-environment
backends, forwards it with the user's query to a completion endpoint, and
passes tool calls through to the backend that owns them.

Configuration is read from the environment once at startup
(HA_MCP_URL, CHROMA_MCP_URL, VOICE_MCP_URL, OPENROUTER_API_KEY, MODEL_NAME,
WYOMING_HOST, WYOMING_PORT, ...).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("pretty") {
				pretty = term.IsTerminal(int(os.Stdout.Fd()))
			}
			color.NoColor = !pretty

			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "Colour and icons (default: on for terminals)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "serve", Title: "Servers:"},
		&cobra.Group{ID: "client", Title: "One-shot:"},
	)

	for _, c := range []*cobra.Command{serveCmd(), voiceCmd()} {
		c.GroupID = "serve"
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{queryCmd(), callCmd(), transcribeCmd(), probeCmd(), eventsCmd()} {
		c.GroupID = "client"
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
