// Package server publishes a set of [tools.Tool] values as a Model Context
// Protocol server.
//
// The server is built on the official go-sdk. Every tool call is bounded by
// the tool's declared maximum latency, traced as a "tool.<name>" span,
// recorded in [observe.Metrics] and kept in a per-tool latency window exposed
// through [Server.Stats]. Tool results are returned as a single text content
// item holding the tool's JSON; a result with a non-empty "error" field is
// flagged with IsError.
//
// Transports:
//
//   - stdio via [Server.RunStdio]
//   - streamable HTTP via [Server.HTTPHandler], usually mounted by [NewMux]
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// DefaultName is the implementation name announced to MCP clients.
const DefaultName = "discord-mcp"

// Config configures a [Server].
type Config struct {
	// Name is announced to clients. Default: [DefaultName].
	Name string

	// Version is announced to clients. Default: "dev".
	Version string

	// Metrics receives tool call measurements. Default: [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// WindowSize is the number of recent calls kept per tool for [Server.Stats].
	WindowSize int
}

// ErrUnknownTool is returned by [Server.Call] for names that are not registered.
var ErrUnknownTool = errors.New("server: unknown tool")

type entry struct {
	tool   tools.Tool
	window *latencyWindow
}

// Server is an MCP server exposing a fixed tool set. It is safe for
// concurrent use; one instance may serve any number of sessions.
type Server struct {
	sdk     *mcpsdk.Server
	metrics *observe.Metrics
	entries map[string]*entry
	names   []string
}

// New registers ts with a new MCP server. Tool names must be unique and every
// tool must have a handler.
func New(ts []tools.Tool, cfg Config) (*Server, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	s := &Server{
		sdk:     mcpsdk.NewServer(&mcpsdk.Implementation{Name: cfg.Name, Version: cfg.Version}, nil),
		metrics: cfg.Metrics,
		entries: make(map[string]*entry, len(ts)),
	}
	for _, t := range ts {
		name := t.Definition.Name
		switch {
		case name == "":
			return nil, errors.New("server: tool with empty name")
		case t.Handler == nil:
			return nil, fmt.Errorf("server: tool %q has no handler", name)
		case s.entries[name] != nil:
			return nil, fmt.Errorf("server: duplicate tool %q", name)
		}
		e := &entry{tool: t, window: newLatencyWindow(cfg.WindowSize)}
		s.entries[name] = e
		s.names = append(s.names, name)
		s.sdk.AddTool(sdkTool(t), s.handler(e))
	}
	return s, nil
}

// sdkTool converts a tool definition into its protocol form.
func sdkTool(t tools.Tool) *mcpsdk.Tool {
	d := t.Definition
	schema := d.Parameters
	if schema == nil {
		schema = map[string]any{"type": "object"}
	}
	destructive := d.Destructive
	openWorld := true
	st := &mcpsdk.Tool{
		Name:        d.Name,
		Description: d.Description,
		InputSchema: schema,
		Annotations: &mcpsdk.ToolAnnotations{
			ReadOnlyHint:    d.ReadOnly,
			DestructiveHint: &destructive,
			IdempotentHint:  d.Idempotent,
			OpenWorldHint:   &openWorld,
		},
	}
	if t.DeclaredP50 > 0 || t.DeclaredMax > 0 {
		st.Meta = mcpsdk.Meta{
			"estimated_duration_ms": t.DeclaredP50,
			"max_duration_ms":       t.DeclaredMax,
		}
	}
	return st
}

func (s *Server) handler(e *entry) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args string
		if req != nil && req.Params != nil {
			args = string(req.Params.Arguments)
		}
		out, isErr := s.call(ctx, e, args)
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: out}},
			IsError: isErr,
		}, nil
	}
}

// Call runs the named tool in-process with the same bounds and
// instrumentation as a protocol call. isError reports whether the result
// carries an error.
func (s *Server) Call(ctx context.Context, name, args string) (result string, isError bool, err error) {
	e, ok := s.entries[name]
	if !ok {
		return "", false, fmt.Errorf("%w %q", ErrUnknownTool, name)
	}
	result, isError = s.call(ctx, e, args)
	return result, isError, nil
}

func (s *Server) call(ctx context.Context, e *entry, args string) (string, bool) {
	name := e.tool.Definition.Name
	if d := e.tool.Timeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	ctx, span := observe.StartSpan(ctx, "tool."+name,
		trace.WithAttributes(attribute.String("mcp.tool.name", name)))
	active := metric.WithAttributes(attribute.String("tool", name))
	s.metrics.ActiveToolCalls.Add(ctx, 1, active)
	defer s.metrics.ActiveToolCalls.Add(ctx, -1, active)

	start := time.Now()
	out, err := e.tool.Handler(ctx, args)
	elapsed := time.Since(start)

	var failure error
	if err != nil {
		failure = err
		out = errorResult(err)
	} else if msg := gjson.Get(out, "error").String(); msg != "" {
		failure = errors.New(msg)
	}

	status := "ok"
	if failure != nil {
		status = "error"
	}
	s.metrics.RecordToolCall(ctx, name, status, elapsed)
	e.window.Record(elapsed.Milliseconds(), failure != nil)
	observe.EndSpan(span, failure)

	log := observe.Logger(ctx)
	if failure != nil {
		log.Warn("tool call failed", "tool", name, "duration", elapsed, "err", failure)
	} else {
		log.Debug("tool call completed", "tool", name, "duration", elapsed)
	}
	return out, failure != nil
}

// errorResult renders err as a {"error": "..."} result.
func errorResult(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(b)
}

// Tools returns the registered tool names in registration order.
func (s *Server) Tools() []string {
	return slices.Clone(s.names)
}

// SDK returns the underlying go-sdk server.
func (s *Server) SDK() *mcpsdk.Server { return s.sdk }

// RunStdio serves a single session over stdin/stdout until the client
// disconnects or ctx is cancelled.
func (s *Server) RunStdio(ctx context.Context) error {
	err := s.sdk.Run(ctx, &mcpsdk.StdioTransport{})
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// HTTPHandler returns the streamable-HTTP transport handler.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.sdk }, nil)
}

// ToolStats summarises recent calls of one tool.
type ToolStats struct {
	Name          string  `json:"name"`
	Calls         int64   `json:"calls"`
	Failures      int64   `json:"failures"`
	ErrorRate     float64 `json:"error_rate"`
	P50Ms         int64   `json:"p50_ms"`
	P99Ms         int64   `json:"p99_ms"`
	DeclaredP50Ms int64   `json:"declared_p50_ms"`
	DeclaredMaxMs int64   `json:"declared_max_ms"`
}

// Stats returns per-tool call statistics in registration order.
func (s *Server) Stats() []ToolStats {
	out := make([]ToolStats, 0, len(s.names))
	for _, name := range s.names {
		e := s.entries[name]
		w := e.window.Stats()
		out = append(out, ToolStats{
			Name:          name,
			Calls:         w.Calls,
			Failures:      w.Failures,
			ErrorRate:     w.ErrorRate,
			P50Ms:         w.P50,
			P99Ms:         w.P99,
			DeclaredP50Ms: e.tool.DeclaredP50,
			DeclaredMaxMs: e.tool.DeclaredMax,
		})
	}
	return out
}
