package config

import "slices"

// ConfigDiff describes what changed between two configs. Only the log level
// is applied live; every other change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the settings that changed but only take effect
	// after a restart, e.g. "server.transport" or "discord.retry".
	RestartRequired []string
}

// Changed reports whether anything differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	restart := func(field string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, field)
		}
	}
	restart("server.transport", old.Server.Transport != new.Server.Transport)
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.watch_interval", old.Server.WatchInterval != new.Server.WatchInterval)

	od, nd := old.Discord, new.Discord
	restart("discord.token", od.Token != nd.Token || od.TokenEnv != nd.TokenEnv || od.TokenFile != nd.TokenFile)
	restart("discord.request_timeout", od.RequestTimeout != nd.RequestTimeout)
	restart("discord.max_message_length", od.MaxMessageLength != nd.MaxMessageLength)
	restart("discord.retry", od.Retry != nd.Retry)
	restart("discord.circuit_breaker", od.CircuitBreaker != nd.CircuitBreaker)

	restart("tools.disabled", !slices.Equal(old.Tools.Disabled, new.Tools.Disabled))
	restart("tools.enable_raw_request", old.Tools.EnableRawRequest != new.Tools.EnableRawRequest)
	restart("telemetry", old.Telemetry != new.Telemetry)

	return d
}
