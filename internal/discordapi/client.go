// Package discordapi is a small authenticated client for the Discord REST API
// (v9, HTTPS only).
//
// [Client.Do] performs exactly one HTTP round trip per call: it resolves the
// bot token, serialises the JSON body, and maps non-2xx responses onto
// [*APIError] values with a stable [ErrorKind]. It never retries; retry and
// circuit-breaking live in decorators that implement the same [Requester]
// interface (see package resilience).
//
// [API] wraps any [Requester] with typed helpers for the endpoints the MCP
// tools use, decoding responses into discordgo structs.
package discordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/discord-mcp/internal/observe"
)

const (
	// DefaultBaseURL is the Discord REST API v9 root.
	DefaultBaseURL = "https://discord.com/api/v9"

	// DefaultTimeout bounds a single round trip.
	DefaultTimeout = 15 * time.Second

	// maxResponseBody caps how much of a response is read into memory.
	maxResponseBody = 8 << 20
)

// Version is reported in the User-Agent header. Overridden at link time.
var Version = "dev"

// Request describes one Discord REST call.
type Request struct {
	// Method is one of GET, POST, PUT, PATCH or DELETE.
	Method string

	// Path is relative to the API root and starts with "/",
	// e.g. "/channels/123/messages".
	Path string

	// Body is JSON-encoded when non-nil.
	Body any

	// Query is appended to the URL when non-empty.
	Query url.Values
}

// Response is a successful (2xx) Discord response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsJSON reports whether the response declares a JSON content type.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && (mt == "application/json" || strings.HasSuffix(mt, "+json"))
}

// Decode unmarshals a JSON body into v.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return fmt.Errorf("discordapi: decode: empty response body (status %d)", r.StatusCode)
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("discordapi: decode: %w", err)
	}
	return nil
}

// Value returns the parsed body: nil for empty bodies, the decoded JSON value
// for JSON responses and the raw text otherwise. JSON numbers are kept as
// [json.Number].
func (r *Response) Value() (any, error) {
	if len(r.Body) == 0 {
		return nil, nil
	}
	if !r.IsJSON() {
		return string(r.Body), nil
	}
	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("discordapi: decode: %w", err)
	}
	return v, nil
}

// Requester performs Discord REST calls.
type Requester interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client is the HTTP implementation of [Requester]. It is safe for
// concurrent use.
type Client struct {
	tokens    TokenSource
	http      *http.Client
	baseURL   string
	userAgent string
	timeout   time.Duration
	metrics   *observe.Metrics
}

var _ Requester = (*Client)(nil)

// Option is a functional option for [New].
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-call deadline. Values <= 0 keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBaseURL points the client at another API root. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithMetrics records request metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a [Client] that authenticates with tokens.
func New(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("discordapi: token source must not be nil")
	}
	c := &Client{
		tokens:    tokens,
		baseURL:   DefaultBaseURL,
		userAgent: fmt.Sprintf("DiscordBot (https://github.com/MrWong99/discord-mcp, %s)", Version),
		timeout:   DefaultTimeout,
	}
	for _, o := range opts {
		o(c)
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("discordapi: invalid base URL: %w", err)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Do performs req and returns the response for 2xx statuses. Every failure
// is an [*APIError].
func (c *Client) Do(ctx context.Context, req Request) (resp *Response, err error) {
	method := strings.ToUpper(req.Method)
	if !allowedMethods[method] {
		return nil, newInvalidRequest("unsupported HTTP method %q", req.Method)
	}
	if req.Path == "" || req.Path[0] != '/' {
		return nil, newInvalidRequest("path %q must start with /", req.Path)
	}

	token, err := ResolveToken(ctx, c.tokens)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, newInvalidRequest("encode request body: %v", err)
		}
		body = bytes.NewReader(b)
	}

	route := Route(req.Path)
	ctx, span := observe.StartSpan(ctx, "discord.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("discord.route", route),
			attribute.String("http.request.method", method),
		),
	)
	defer func() { observe.EndSpan(span, err) }()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := c.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, newInvalidRequest("build request: %v", err)
	}
	httpReq.Header.Set("Authorization", "Bot "+token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.RecordDiscordRequest(ctx, route, method, string(KindTransportFailure), time.Since(start))
		observe.Logger(ctx).Warn("discord request failed",
			"method", method, "route", route, "err", err)
		return nil, NewTransportError(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordDiscordRequest(ctx, route, method, string(KindTransportFailure), elapsed)
		return nil, NewTransportError(fmt.Errorf("read response body: %w", err))
	}

	status := httpResp.StatusCode
	c.metrics.RecordDiscordRequest(ctx, route, method, strconv.Itoa(status), elapsed)
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	if status < 200 || status > 299 {
		apiErr := errorFromResponse(status, httpResp.Header, raw)
		if apiErr.Kind == KindRateLimited {
			c.metrics.RecordRateLimit(ctx, route, apiErr.Global)
			observe.Logger(ctx).Warn("discord rate limit hit",
				"route", route, "retry_after", apiErr.RetryAfter, "global", apiErr.Global)
		} else {
			observe.Logger(ctx).Debug("discord request rejected",
				"method", method, "route", route, "status", status, "code", apiErr.Code)
		}
		return nil, apiErr
	}

	slog.Debug("discord request completed",
		"method", method, "route", route, "status", status, "duration", elapsed)
	return &Response{StatusCode: status, Header: httpResp.Header, Body: raw}, nil
}
