package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/discord-mcp/internal/chunker"
)

// Environment variables consulted by [ApplyEnv].
const (
	EnvLogLevel  = "DISCORD_MCP_LOG_LEVEL"
	EnvTransport = "DISCORD_MCP_TRANSPORT"
	EnvPort      = "PORT"
)

// maxRequestTimeout bounds discord.request_timeout.
const maxRequestTimeout = 2 * time.Minute

// LookupFunc resolves an environment variable. [os.LookupEnv] satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config]. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}
	cfg, err := parse(data, os.LookupEnv)
	if err != nil && path != "" {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. The environment is not consulted.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data, nil)
}

func parse(data []byte, lookup LookupFunc) (*Config, error) {
	cfg := Default()
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("config: load %q: %w", path, err)
}

// ApplyEnv overrides cfg with the environment variables understood by
// discord-mcp. The token variable itself is not read here; it is resolved
// per request through [DiscordConfig.TokenSource].
func ApplyEnv(cfg *Config, lookup LookupFunc) {
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v, ok := lookup(EnvTransport); ok && v != "" {
		cfg.Server.Transport = Transport(v)
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		cfg.Server.ListenAddr = ":" + v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("server.transport %q is invalid; valid values: stdio, streamable-http", cfg.Server.Transport))
	}
	if cfg.Server.Transport == TransportStreamableHTTP && cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required for the streamable-http transport"))
	}
	if cfg.Server.WatchInterval < 0 {
		errs = append(errs, fmt.Errorf("server.watch_interval must not be negative, got %s", cfg.Server.WatchInterval))
	}

	// Discord
	d := cfg.Discord
	if d.RequestTimeout <= 0 || d.RequestTimeout > maxRequestTimeout {
		errs = append(errs, fmt.Errorf("discord.request_timeout must be in (0, %s], got %s", maxRequestTimeout, d.RequestTimeout))
	}
	if d.MaxMessageLength < 1 || d.MaxMessageLength > chunker.MaxMessageLength {
		errs = append(errs, fmt.Errorf("discord.max_message_length must be between 1 and %d, got %d", chunker.MaxMessageLength, d.MaxMessageLength))
	}
	if d.Retry.MaxAttempts < 1 || d.Retry.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("discord.retry.max_attempts must be between 1 and 10, got %d", d.Retry.MaxAttempts))
	}
	if d.Retry.InitialDelay < 0 || d.Retry.MaxDelay < 0 {
		errs = append(errs, errors.New("discord.retry delays must not be negative"))
	} else if d.Retry.MaxDelay > 0 && d.Retry.InitialDelay > d.Retry.MaxDelay {
		errs = append(errs, fmt.Errorf("discord.retry.initial_delay %s exceeds max_delay %s", d.Retry.InitialDelay, d.Retry.MaxDelay))
	}
	if d.CircuitBreaker.Enabled {
		if d.CircuitBreaker.MaxFailures < 1 {
			errs = append(errs, fmt.Errorf("discord.circuit_breaker.max_failures must be at least 1, got %d", d.CircuitBreaker.MaxFailures))
		}
		if d.CircuitBreaker.ResetTimeout <= 0 {
			errs = append(errs, fmt.Errorf("discord.circuit_breaker.reset_timeout must be positive, got %s", d.CircuitBreaker.ResetTimeout))
		}
	}
	if d.Token == "" && d.TokenEnv == "" && d.TokenFile == "" {
		slog.Warn("no bot token source configured; every Discord call will fail until one is set")
	}

	return errors.Join(errs...)
}
