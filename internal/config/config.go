// Package config provides the configuration schema and loader for
// discord-mcp.
//
// Configuration comes from an optional YAML file, a .env file in the working
// directory and a handful of environment variables, in increasing order of
// precedence. Every field has a default, so an empty configuration is valid;
// a missing bot token is reported at call time rather than at load time.
package config

import (
	"log/slog"
	"time"

	"github.com/MrWong99/discord-mcp/internal/chunker"
	"github.com/MrWong99/discord-mcp/internal/discordapi"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to an [slog.Level]. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Transport selects how MCP clients reach the server.
type Transport string

const (
	// TransportStdio serves a single client over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP serves clients over HTTP at /mcp.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Discord   DiscordConfig   `yaml:"discord"`
	Tools     ToolsConfig     `yaml:"tools"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig holds transport and logging settings.
type ServerConfig struct {
	// Transport is stdio or streamable-http.
	Transport Transport `yaml:"transport"`

	// ListenAddr is the TCP address of the streamable-HTTP server.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the only setting applied without a
	// restart when the config file changes.
	LogLevel LogLevel `yaml:"log_level"`

	// WatchInterval is how often the config file is polled for changes.
	// Zero disables watching.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// DiscordConfig configures the REST client.
type DiscordConfig struct {
	// Token is an inline bot token. Prefer TokenEnv or TokenFile.
	Token string `yaml:"token"`

	// TokenEnv names the environment variable holding the token. It is read
	// on every request.
	TokenEnv string `yaml:"token_env"`

	// TokenFile is a path to a file holding the token, e.g. a mounted
	// secret. It is read on every request.
	TokenFile string `yaml:"token_file"`

	// RequestTimeout bounds a single REST call.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxMessageLength is the chunk size used by send_message.
	MaxMessageLength int `yaml:"max_message_length"`

	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig configures retries of transient Discord failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts per request. 1 disables
	// retries.
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// CircuitBreakerConfig configures the breaker guarding the Discord API.
type CircuitBreakerConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ToolsConfig selects the published tools.
type ToolsConfig struct {
	// Disabled lists tool names that are not registered.
	Disabled []string `yaml:"disabled"`

	// EnableRawRequest registers the api_request passthrough tool.
	EnableRawRequest bool `yaml:"enable_raw_request"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Transport:     TransportStdio,
			ListenAddr:    ":8080",
			LogLevel:      LogInfo,
			WatchInterval: 5 * time.Second,
		},
		Discord: DiscordConfig{
			TokenEnv:         "DISCORD_TOKEN",
			RequestTimeout:   discordapi.DefaultTimeout,
			MaxMessageLength: chunker.MaxMessageLength,
			Retry: RetryConfig{
				MaxAttempts:  1,
				InitialDelay: 500 * time.Millisecond,
				MaxDelay:     10 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:      true,
				MaxFailures:  5,
				ResetTimeout: 30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{ServiceName: "discord-mcp"},
	}
}

// TokenSource returns the token lookup described by d: the token file, then
// the inline token, then the environment variable. The first non-empty value
// wins on every call.
func (d DiscordConfig) TokenSource() discordapi.TokenSource {
	var srcs discordapi.FirstToken
	if d.TokenFile != "" {
		srcs = append(srcs, discordapi.FileToken(d.TokenFile))
	}
	if d.Token != "" {
		srcs = append(srcs, discordapi.StaticToken(d.Token))
	}
	if d.TokenEnv != "" {
		srcs = append(srcs, discordapi.EnvToken(d.TokenEnv))
	}
	return srcs
}

// Redact returns a copy of cfg that is safe to log.
func Redact(cfg *Config) *Config {
	c := *cfg
	c.Tools.Disabled = append([]string(nil), cfg.Tools.Disabled...)
	if c.Discord.Token != "" {
		c.Discord.Token = "[REDACTED]"
	}
	return &c
}
