package unifiedmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	xerrors "UnifiedMCP-Client/internal/errors"
	"UnifiedMCP-Client/internal/observability/metrics"
	"UnifiedMCP-Client/internal/realtime"
	"UnifiedMCP-Client/pkg/logger"
)

// DefaultTimeout is applied to HTTP requests and realtime replies when no
// WithTimeout option is given.
const DefaultTimeout = 30 * time.Second

// Object is an opaque JSON object returned by the server. The client never
// validates or mutates entity contents.
type Object = map[string]any

// Agent, Task and Tool are server records passed through unchanged.
type (
	Agent = Object
	Task  = Object
	Tool  = Object
)

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the bearer credential used for HTTP calls and as the
// realtime connect token.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = strings.TrimSpace(key) }
}

// WithTimeout bounds each HTTP request and each realtime reply wait.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRealtime enables or disables the realtime channel. It is enabled by
// default.
func WithRealtime(enabled bool) Option {
	return func(c *Client) { c.useRealtime = enabled }
}

// WithRealtimeURL overrides the realtime endpoint, which defaults to the base
// URL.
func WithRealtimeURL(raw string) Option {
	return func(c *Client) { c.realtimeURL = strings.TrimSpace(raw) }
}

// WithHTTPClient replaces the HTTP client. Its Timeout is left untouched.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics exports call and push-event metrics to reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *Client) { c.registerer = reg }
}

// Client talks to a Unified MCP server. Domain calls go over the realtime
// channel while it is connected and over HTTP otherwise.
type Client struct {
	baseURL     *url.URL
	apiKey      string
	timeout     time.Duration
	useRealtime bool
	realtimeURL string

	httpClient *http.Client
	log        *slog.Logger
	registerer prometheus.Registerer
	metrics    metrics.Observer

	http *httpTransport

	connMu sync.RWMutex
	conn   *realtime.Conn

	handlersMu sync.RWMutex
	handlers   map[string][]*Handler
}

// NewClient builds a client for the server at rawURL. When realtime is
// enabled it connects immediately; a failed connection is logged and the
// client serves every call over HTTP for the rest of its lifetime.
func NewClient(ctx context.Context, rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}

	c := &Client{
		baseURL:     parsed,
		timeout:     DefaultTimeout,
		useRealtime: true,
		handlers:    make(map[string][]*Handler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	if c.log == nil {
		c.log = logger.Named("unifiedmcp")
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.realtimeURL == "" {
		c.realtimeURL = parsed.String()
	}
	c.metrics = metrics.Nop{}
	if c.registerer != nil {
		obs, err := metrics.NewPrometheusObserver("", c.registerer)
		if err != nil {
			return nil, err
		}
		c.metrics = obs
	}

	c.http = &httpTransport{
		baseURL: c.baseURL,
		client:  c.httpClient,
		apiKey:  c.apiKey,
	}

	if c.useRealtime {
		c.connect(ctx)
	}
	return c, nil
}

func (c *Client) connect(ctx context.Context) {
	opts := realtime.Options{
		URL:              c.realtimeURL,
		Auth:             map[string]any{"token": nullable(c.apiKey)},
		HandshakeTimeout: c.timeout,
		Logger:           c.log.With(slog.String("transport", "realtime")),
		OnEvent:          c.dispatch,
		OnConnect: func(sid string) {
			c.log.Info("connected to Unified MCP server via realtime channel", slog.String("sid", sid))
		},
		OnDisconnect: func(reason error) {
			c.log.Info("disconnected from Unified MCP server realtime channel", slog.Any("reason", reason))
		},
	}
	conn, err := realtime.Dial(ctx, opts)
	if err != nil {
		c.log.Warn("realtime connection error, falling back to HTTP", slog.Any("error", err))
		return
	}
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// nullable renders an empty credential as JSON null, the way the server
// expects an absent token.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Connected reports whether calls currently use the realtime channel.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn.Connected()
}

// Disconnected returns a channel that is closed when the realtime connection
// ends. It returns nil when the client has no realtime connection.
func (c *Client) Disconnected() <-chan struct{} {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Done()
}

// Close tears down the realtime connection. Subsequent calls use HTTP.
func (c *Client) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

// transport picks the strategy for a single call from the live connection
// state.
func (c *Client) transport() transport {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn.Connected() {
		return &socketTransport{conn: conn, timeout: c.timeout}
	}
	return c.http
}

func (c *Client) invoke(ctx context.Context, op operation, out any) error {
	t := c.transport()
	start := time.Now()
	err := t.do(ctx, op, out)
	c.metrics.ObserveCall(t.name(), op.name, time.Since(start), err)
	if err != nil {
		c.logFailure(ctx, t.name(), op.name, err)
	}
	return err
}

// logFailure logs a failed call at the level its error class calls for.
// Errors the caller asked for (HTTP error statuses, cancellation) stay at
// debug.
func (c *Client) logFailure(ctx context.Context, transport, operation string, err error) {
	level := xerrors.LevelOf(err)
	attrs := []slog.Attr{
		slog.String("operation", operation),
		slog.String("transport", transport),
		slog.Bool("transient", xerrors.IsTransient(err)),
		slog.Any("error", err),
	}
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		level = slog.LevelDebug
		attrs = append(attrs, slog.Int("status", apiErr.StatusCode))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		level = slog.LevelDebug
	}
	attrs = append(attrs, xerrors.LogAttrs(err)...)
	c.log.LogAttrs(ctx, level, "call failed", attrs...)
}

// Health reports server health. It always uses HTTP.
func (c *Client) Health(ctx context.Context) (Object, error) {
	var out Object
	op := operation{name: "health", method: http.MethodGet, path: "/health"}
	start := time.Now()
	err := c.http.do(ctx, op, &out)
	c.metrics.ObserveCall(c.http.name(), op.name, time.Since(start), err)
	if err != nil {
		c.logFailure(ctx, c.http.name(), op.name, err)
		return nil, err
	}
	return out, nil
}
