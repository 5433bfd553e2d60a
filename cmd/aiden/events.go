package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/render"
)

func eventsCmd() *cobra.Command {
	var limit int
	var serverURL string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent failure events",
		Long: `List recorded source failures, degraded completions and failed tool
calls, newest first. Reads AUDIT_DB when set, otherwise asks a running
gateway (--server).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			var events []audit.Event
			var err error
			switch {
			case serverURL != "":
				events, err = fetchEvents(ctx, serverURL, limit)
			case cfg.AuditDB != "":
				var store *audit.SQLiteStore
				store, err = audit.OpenSQLite(cfg.AuditDB)
				if err != nil {
					return err
				}
				defer store.Close()
				events, err = store.Recent(ctx, limit)
			default:
				return errors.New("AUDIT_DB is not set; pass --server to read from a running gateway")
			}
			if err != nil {
				return err
			}

			fmt.Print(render.New(pretty).Events(events))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	cmd.Flags().StringVar(&serverURL, "server", "", "Gateway base URL, e.g. http://localhost:8104")
	return cmd
}

func fetchEvents(ctx context.Context, base string, limit int) ([]audit.Event, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/events")
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch events: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Events []audit.Event `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return payload.Events, nil
}
