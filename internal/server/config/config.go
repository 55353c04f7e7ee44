// Package config handles configuration for the chat core, including
// defaults, JSON overlay, and command-line flags.
package config

// Config holds runtime settings for the chat state core.
//
// Fields:
//   - MinNameLen / MinPasswordLen: signup length floors (runes).
//   - MaxUploadBytes: upper bound on a declared upload size, 0 for unlimited.
//   - MaxAvatarBytes: upper bound on an encoded avatar, 0 for unlimited.
//   - SessionBuffer: per-connection outbound channel capacity; a session
//     that falls this many events behind is dropped as a slow consumer.
//   - LogLevel: slog level name (debug, info, warn, error).
type Config struct {
	MinNameLen     int
	MinPasswordLen int
	MaxUploadBytes int64
	MaxAvatarBytes int
	SessionBuffer  int
	LogLevel       string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.MinNameLen = 3
	c.MinPasswordLen = 4
	c.MaxUploadBytes = 64 << 20
	c.MaxAvatarBytes = 1 << 20
	c.SessionBuffer = 256
	c.LogLevel = "info"
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
