// Command discord-mcp serves the Discord REST API as Model Context Protocol
// tools over stdio or streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/discord-mcp/internal/config"
	"github.com/MrWong99/discord-mcp/internal/discordapi"
	"github.com/MrWong99/discord-mcp/internal/mcp/server"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools"
	"github.com/MrWong99/discord-mcp/internal/mcp/tools/discordtools"
	"github.com/MrWong99/discord-mcp/internal/observe"
	"github.com/MrWong99/discord-mcp/internal/resilience"
)

// version is set at link time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "discord-mcp: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dotEnv     string
}

func newRootCmd() *cobra.Command {
	var g globalFlags
	serve := newServeCmd(&g)

	root := &cobra.Command{
		Use:           "discord-mcp",
		Short:         "Expose the Discord REST API as MCP tools",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to the YAML configuration file (optional)")
	root.PersistentFlags().StringVar(&g.dotEnv, "env-file", ".env", "dotenv file loaded before the configuration")
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newWhoamiCmd(&g), newChannelsCmd(&g), newToolsCmd(&g), newCallCmd(&g))
	return root
}

// loadConfig reads the dotenv file and the configuration.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(g.dotEnv); err != nil {
		return nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found", g.configPath)
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// stack is the Discord client with its resilience decorators.
type stack struct {
	tokens  discordapi.TokenSource
	api     *discordapi.API
	breaker *resilience.CircuitBreaker
}

func newStack(cfg *config.Config, m *observe.Metrics) (*stack, error) {
	discordapi.Version = version
	tokens := cfg.Discord.TokenSource()

	client, err := discordapi.New(tokens,
		discordapi.WithTimeout(cfg.Discord.RequestTimeout),
		discordapi.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("create discord client: %w", err)
	}

	var r discordapi.Requester = client
	if rc := cfg.Discord.Retry; rc.MaxAttempts > 1 {
		r = resilience.NewRetrier(r, resilience.RetryConfig{
			MaxAttempts:  rc.MaxAttempts,
			InitialDelay: rc.InitialDelay,
			MaxDelay:     rc.MaxDelay,
		})
	}

	st := &stack{tokens: tokens}
	if bc := cfg.Discord.CircuitBreaker; bc.Enabled {
		st.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:         "discord",
			MaxFailures:  bc.MaxFailures,
			ResetTimeout: bc.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			},
		})
		r = resilience.NewBreaker(r, st.breaker)
	}
	st.api = discordapi.NewAPI(r)
	return st, nil
}

// newToolServer builds the MCP server with the configured tool set.
func newToolServer(cfg *config.Config, st *stack, m *observe.Metrics) (*server.Server, error) {
	ts := discordtools.Tools(st.api, discordtools.Options{
		MaxMessageLength: cfg.Discord.MaxMessageLength,
		EnableRawRequest: cfg.Tools.EnableRawRequest,
		Metrics:          m,
	})

	known := make(map[string]bool, len(ts))
	for _, t := range ts {
		known[t.Definition.Name] = true
	}
	for _, name := range cfg.Tools.Disabled {
		if !known[name] {
			slog.Warn("tools.disabled names an unknown tool", "tool", name)
		}
	}

	return server.New(tools.Without(ts, cfg.Tools.Disabled...), server.Config{
		Version: version,
		Metrics: m,
	})
}
