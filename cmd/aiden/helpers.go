package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/wyoming"
)

// openStore returns the sqlite event store when AUDIT_DB is set, otherwise
// an in-memory ring.
func openStore() (audit.Store, error) {
	if cfg.AuditDB == "" {
		return audit.NewMemoryStore(cfg.AuditCapacity), nil
	}
	store, err := audit.OpenSQLite(cfg.AuditDB)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	return store, nil
}

func wyomingClient() (*wyoming.Client, error) {
	return wyoming.NewClient(cfg.WyomingAddr(),
		wyoming.WithTimeout(cfg.TranscribeTimeout),
		wyoming.WithProbeTimeout(cfg.ProbeTimeout),
		wyoming.WithMaxFrame(cfg.MaxFrame),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// parseArguments decodes a JSON object given on the command line. An empty
// string yields an empty object.
func parseArguments(s string) (map[string]any, error) {
	args := map[string]any{}
	if s == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(s), &args); err != nil {
		return nil, fmt.Errorf("arguments must be a JSON object: %w", err)
	}
	if args == nil {
		return nil, errors.New("arguments must be a JSON object, not null")
	}
	return args, nil
}
