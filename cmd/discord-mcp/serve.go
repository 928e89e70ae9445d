package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/discord-mcp/internal/config"
	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/health"
	"github.com/MrWong99/discord-mcp/internal/mcp/server"
	"github.com/MrWong99/discord-mcp/internal/observe"
)

type serveFlags struct {
	transport string
	listen    string
}

func newServeCmd(g *globalFlags) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), g, f)
		},
	}
	cmd.Flags().StringVar(&f.transport, "transport", "", "stdio or streamable-http (overrides server.transport)")
	cmd.Flags().StringVar(&f.listen, "listen", "", "listen address for streamable-http (overrides server.listen_addr)")
	return cmd
}

// apply overrides cfg with the flags that were set.
func (f serveFlags) apply(cfg *config.Config) {
	if f.transport != "" {
		cfg.Server.Transport = config.Transport(f.transport)
	}
	if f.listen != "" {
		cfg.Server.ListenAddr = f.listen
	}
}

// diff compares two reloaded configs with the flag overrides applied, so
// settings pinned on the command line never count as changed.
func (f serveFlags) diff(old, new *config.Config) config.ConfigDiff {
	o, n := *old, *new
	f.apply(&o)
	f.apply(&n)
	return config.Diff(&o, &n)
}

func runServe(ctx context.Context, g *globalFlags, f serveFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cfg)
	if err := config.Validate(cfg); err != nil {
		return err
	}

	// stdout carries the stdio transport, so logs always go to stderr.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Level())
	slog.SetDefault(newLogger(level))

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	st, err := newStack(cfg, metrics)
	if err != nil {
		return err
	}
	srv, err := newToolServer(cfg, st, metrics)
	if err != nil {
		return err
	}

	if _, err := discordapi.ResolveToken(ctx, st.tokens); err != nil {
		slog.Warn("no bot token available yet; tool calls will fail until one is set", "err", err)
	}

	if g.configPath != "" && cfg.Server.WatchInterval > 0 {
		w, err := config.NewWatcher(g.configPath, func(old, new *config.Config) {
			applyReload(level, f.diff(old, new))
		}, config.WithInterval(cfg.Server.WatchInterval))
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	slog.Info("discord-mcp starting",
		"version", version,
		"transport", cfg.Server.Transport,
		"tools", len(srv.Tools()),
		"raw_request", cfg.Tools.EnableRawRequest,
	)
	slog.Debug("effective configuration", "config", config.Redact(cfg))

	switch cfg.Server.Transport {
	case config.TransportStreamableHTTP:
		checkers := []health.Checker{health.Credentials(st.tokens)}
		if st.breaker != nil {
			checkers = append(checkers, health.Breaker(st.breaker))
		}
		mux := server.NewMux(srv, server.MuxOptions{
			Health:  health.New(checkers...),
			Metrics: tel.MetricsHandler,
		})
		slog.Info("listening", "addr", cfg.Server.ListenAddr, "path", server.MCPPath)
		err = server.ListenAndServe(ctx, cfg.Server.ListenAddr, mux)
	default:
		err = srv.RunStdio(ctx)
	}
	if err != nil {
		return err
	}
	slog.Info("goodbye")
	return nil
}

// applyReload applies the live-reloadable part of a config change and warns
// about the rest.
func applyReload(level *slog.LevelVar, d config.ConfigDiff) {
	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.Level())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("configuration changes take effect after a restart", "fields", d.RestartRequired)
	}
}
