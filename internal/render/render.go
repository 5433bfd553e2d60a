// Package render formats gateway results for the terminal.
//
// A pretty Renderer uses colour and icons; a plain one emits stable
// key=value lines suitable for scripts.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/aiden/internal/audit"
	"github.com/joss/aiden/internal/gateway"
	"github.com/joss/aiden/internal/wyoming"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

func (r *Renderer) rule(sb *strings.Builder, title string, n int) {
	sb.WriteString(color.CyanString(title) + "\n")
	sb.WriteString(strings.Repeat("─", n) + "\n")
}

// Query formats a gateway answer, with its context sections and any sources
// that failed.
func (r *Renderer) Query(res *gateway.QueryResult) string {
	var sb strings.Builder

	if !r.pretty {
		fmt.Fprintf(&sb, "degraded=%v sections=%d failures=%d\n", res.Degraded, len(res.Sections), len(res.Failures))
		sb.WriteString(res.Response + "\n")
		return sb.String()
	}

	r.rule(&sb, "Query", 60)
	fmt.Fprintf(&sb, "  %s\n\n", res.Query)

	if len(res.Sections) > 0 {
		r.rule(&sb, "Context", 60)
		for _, s := range res.Sections {
			fmt.Fprintf(&sb, "%s %s\n", color.GreenString("✓"), color.New(color.Bold).Sprint(s.Label))
			for _, line := range strings.Split(s.Body, "\n") {
				fmt.Fprintf(&sb, "    %s\n", line)
			}
		}
		sb.WriteString("\n")
	}

	for _, f := range res.Failures {
		icon := color.RedString("✗")
		if f.Timeout {
			icon = color.YellowString("⏱")
		}
		fmt.Fprintf(&sb, "%s %s %s\n", icon, f.Label, color.HiBlackString("(%s)", FormatDuration(f.Duration)))
		fmt.Fprintf(&sb, "    └─ %s\n", Truncate(f.Err.Error(), 70))
	}
	if len(res.Failures) > 0 {
		sb.WriteString("\n")
	}

	title := "Response"
	if res.Degraded {
		title = "Response " + color.YellowString("(degraded)")
	}
	r.rule(&sb, title, 60)
	sb.WriteString(res.Response + "\n")
	return sb.String()
}

// ToolResult formats a raw tool result as indented JSON.
func (r *Renderer) ToolResult(tool string, raw json.RawMessage) string {
	body := string(raw)
	var v any
	if json.Unmarshal(raw, &v) == nil {
		if out, err := json.MarshalIndent(v, "", "  "); err == nil {
			body = string(out)
		}
	}
	if !r.pretty {
		return body + "\n"
	}

	var sb strings.Builder
	r.rule(&sb, tool, 40)
	sb.WriteString(body + "\n")
	return sb.String()
}

// Transcription formats a wire transcription.
func (r *Renderer) Transcription(res *wyoming.Result) string {
	if !r.pretty {
		return res.Text + "\n"
	}
	return fmt.Sprintf("%s %s %s\n", color.GreenString("✓"), res.Text,
		color.HiBlackString("(%d bytes, %s)", res.Bytes, FormatDuration(res.Duration)))
}

// Probe formats a reachability check.
func (r *Renderer) Probe(res wyoming.ProbeResult) string {
	addr := fmt.Sprintf("%s:%d", res.Host, res.Port)
	if !r.pretty {
		if res.Error != "" {
			return fmt.Sprintf("connected=%v addr=%s error=%q\n", res.Connected, addr, res.Error)
		}
		return fmt.Sprintf("connected=%v addr=%s\n", res.Connected, addr)
	}

	if res.Connected {
		return fmt.Sprintf("%s %s %s\n", color.GreenString("✓"), addr, color.GreenString("reachable"))
	}
	return fmt.Sprintf("%s %s %s\n    └─ %s\n", color.RedString("✗"), addr, color.RedString("unreachable"), res.Error)
}

// Events formats recorded failure events, newest first.
func (r *Renderer) Events(events []audit.Event) string {
	if len(events) == 0 {
		return "No failure events recorded\n"
	}

	var sb strings.Builder
	if r.pretty {
		r.rule(&sb, fmt.Sprintf("Failure Events (%d)", len(events)), 60)
	}

	for _, e := range events {
		timeStr := e.At.Local().Format("15:04:05")
		dur := FormatDuration(time.Duration(e.DurationMs) * time.Millisecond)

		if !r.pretty {
			fmt.Fprintf(&sb, "[%s] %s %s/%s %s %s\n", timeStr, e.Status, e.Category, e.Operation, dur, e.ErrorMessage)
			continue
		}

		fmt.Fprintf(&sb, "%s %s %s/%s %s\n", statusIcon(e.Status), color.HiBlackString(timeStr),
			e.Category, e.Operation, color.HiBlackString("(%s)", dur))
		if e.ErrorMessage != "" {
			fmt.Fprintf(&sb, "    └─ %s\n", Truncate(e.ErrorMessage, 70))
		}
	}
	return sb.String()
}

func statusIcon(s audit.Status) string {
	switch s {
	case audit.StatusTimeout:
		return color.YellowString("⏱")
	case audit.StatusDegraded:
		return color.YellowString("!")
	default:
		return color.RedString("✗")
	}
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
