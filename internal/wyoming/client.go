// Package wyoming is a client for the Wyoming-Whisper transcription backend.
//
// Every call opens its own TCP connection, sends the audio as one frame and
// reads one frame of UTF-8 text back (see package protocol). Exchanges are
// strictly sequential per connection; concurrent callers never share a socket.
// All failures come back as typed errors: *protocol.Error, *TimeoutError or
// *ConnError.
package wyoming

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/joss/aiden/internal/protocol"
)

// Default budgets.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultProbeTimeout = 5 * time.Second
)

// Dialer opens connections (enables testing).
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Verify net.Dialer implements Dialer
var _ Dialer = (*net.Dialer)(nil)

// Client talks to a single Wyoming endpoint.
type Client struct {
	addr         string
	host         string
	port         int
	timeout      time.Duration
	probeTimeout time.Duration
	maxFrame     int
	dialer       Dialer
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the budget for a full transcription exchange.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithProbeTimeout sets the budget for Probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.probeTimeout = d
	}
}

// WithMaxFrame bounds request and response frame sizes.
func WithMaxFrame(n int) Option {
	return func(c *Client) {
		c.maxFrame = n
	}
}

// WithDialer replaces the network dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient creates a client for addr ("host:port").
func NewClient(addr string, opts ...Option) (*Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("wyoming address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return nil, fmt.Errorf("wyoming address %q: invalid port", addr)
	}

	c := &Client{
		addr:         addr,
		host:         host,
		port:         port,
		timeout:      DefaultTimeout,
		probeTimeout: DefaultProbeTimeout,
		maxFrame:     protocol.DefaultMaxFrame,
		dialer:       &net.Dialer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Addr returns the backend address.
func (c *Client) Addr() string { return c.addr }

// Host returns the backend host.
func (c *Client) Host() string { return c.host }

// Port returns the backend port.
func (c *Client) Port() int { return c.port }

// Result is a completed transcription.
type Result struct {
	Text     string
	Bytes    int
	Duration time.Duration
}

// Transcribe sends audio and returns the decoded transcription. The connect,
// write and read together share one timeout budget.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (*Result, error) {
	if err := protocol.CheckSize(len(audio), c.maxFrame); err != nil {
		return nil, err
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, c.classify(ctx, "dial", err, c.timeout)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	// Cancellation of the caller's context unblocks pending I/O.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := protocol.NewEncoder(conn, c.maxFrame).Encode(audio); err != nil {
		return nil, c.classify(ctx, "write", err, c.timeout)
	}

	payload, err := protocol.NewDecoder(conn, c.maxFrame).Decode()
	if err != nil {
		return nil, c.classify(ctx, "read", err, c.timeout)
	}

	if !utf8.Valid(payload) {
		return nil, ErrInvalidText
	}

	return &Result{
		Text:     string(payload),
		Bytes:    len(payload),
		Duration: time.Since(start),
	}, nil
}

// ProbeResult reports reachability without a framed exchange.
type ProbeResult struct {
	Connected bool   `json:"connected"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Error     string `json:"error,omitempty"`
}

// Probe opens and immediately closes a connection.
func (c *Client) Probe(ctx context.Context) ProbeResult {
	res := ProbeResult{Host: c.host, Port: c.port}

	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		res.Error = c.classify(ctx, "probe", err, c.probeTimeout).Error()
		return res
	}
	conn.Close()

	res.Connected = true
	return res
}

// classify maps transport failures onto the client's error taxonomy.
func (c *Client) classify(ctx context.Context, op string, err error, budget time.Duration) error {
	if protocol.IsProtocol(err) {
		return err
	}

	switch ctx.Err() {
	case context.DeadlineExceeded:
		return &TimeoutError{Op: op, Budget: budget}
	case context.Canceled:
		return &ConnError{Op: op, Addr: c.addr, Err: context.Canceled}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Op: op, Budget: budget}
	}
	return &ConnError{Op: op, Addr: c.addr, Err: err}
}
