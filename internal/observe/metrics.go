// Package observe provides application-wide observability primitives for
// discord-mcp: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus registry so the streamable-HTTP server can
// expose /metrics. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all discord-mcp metrics.
const meterName = "github.com/MrWong99/discord-mcp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// DiscordRequestDuration tracks the round-trip latency of Discord REST
	// calls. Attributes: route, method, status.
	DiscordRequestDuration metric.Float64Histogram

	// DiscordRequests counts Discord REST calls. Attributes: route, method,
	// status (HTTP status code or error kind when no response arrived).
	DiscordRequests metric.Int64Counter

	// RateLimits counts 429 responses. Attributes: route, global.
	RateLimits metric.Int64Counter

	// ToolDuration tracks end-to-end tool execution latency.
	ToolDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// ActiveToolCalls tracks the number of in-flight tool invocations.
	ActiveToolCalls metric.Int64UpDownCounter

	// ChunksSent counts message chunks delivered by send_message.
	ChunksSent metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time of the
	// streamable-HTTP server. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for REST
// round trips, which are dominated by network latency and rate-limit waits.
var latencyBuckets = []float64{
	0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DiscordRequestDuration, err = m.Float64Histogram("discord_mcp.discord.request.duration",
		metric.WithDescription("Latency of Discord REST API calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DiscordRequests, err = m.Int64Counter("discord_mcp.discord.requests",
		metric.WithDescription("Total Discord REST API calls by route, method, and status."),
	); err != nil {
		return nil, err
	}
	if met.RateLimits, err = m.Int64Counter("discord_mcp.discord.rate_limits",
		metric.WithDescription("Total rate-limited Discord responses by route."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("discord_mcp.tool.duration",
		metric.WithDescription("Latency of MCP tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("discord_mcp.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ActiveToolCalls, err = m.Int64UpDownCounter("discord_mcp.tool.active",
		metric.WithDescription("Number of tool invocations currently executing."),
	); err != nil {
		return nil, err
	}
	if met.ChunksSent, err = m.Int64Counter("discord_mcp.chunks.sent",
		metric.WithDescription("Total message chunks delivered to Discord."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("discord_mcp.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails (should not happen with the global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordDiscordRequest records one Discord REST round trip.
func (m *Metrics) RecordDiscordRequest(ctx context.Context, route, method, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.String("status", status),
	)
	m.DiscordRequests.Add(ctx, 1, attrs)
	m.DiscordRequestDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordRateLimit records a 429 response for route.
func (m *Metrics) RecordRateLimit(ctx context.Context, route string, global bool) {
	m.RateLimits.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("route", route),
			attribute.Bool("global", global),
		),
	)
}

// RecordToolCall records a completed tool invocation. status is "ok" or
// "error".
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	)
	m.ToolCalls.Add(ctx, 1, attrs)
	m.ToolDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordChunksSent adds n delivered message chunks.
func (m *Metrics) RecordChunksSent(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	m.ChunksSent.Add(ctx, int64(n))
}
