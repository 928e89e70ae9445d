package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/discord-mcp/internal/health"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

// MCPPath is where the streamable-HTTP transport is mounted.
const MCPPath = "/mcp"

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// MuxOptions configures [NewMux].
type MuxOptions struct {
	// Health serves /healthz and /readyz when non-nil.
	Health *health.Handler

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
}

// NewMux routes the MCP endpoint, health probes, metrics and tool statistics
// behind [observe.Middleware].
func NewMux(s *Server, opts MuxOptions) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MCPPath, s.HTTPHandler())
	if opts.Health != nil {
		opts.Health.Register(mux)
	}
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	mux.HandleFunc("GET /debug/tools", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(s.Stats()); err != nil {
			slog.Warn("encode tool stats", "err", err)
		}
	})
	return observe.Middleware(s.metrics)(mux)
}

// ListenAndServe listens on addr and calls [Serve].
func ListenAndServe(ctx context.Context, addr string, h http.Handler) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, h)
}

// Serve serves h on ln until ctx is cancelled, then shuts the server down
// gracefully. Request contexts derive from ctx so long-lived event streams
// end with it. It returns nil after a clean shutdown.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", ln.Addr().String(), "mcp", MCPPath)
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		slog.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
