// Package config handles configuration for the client: defaults, an
// environment/.env overlay, an optional JSON file and command-line flags.
package config

import "time"

// Config holds runtime settings for the client.
//
// Fields:
//   - ServerURL: base URL of the auth API, e.g. "http://127.0.0.1:8080".
//   - CheckInterval: how often the expiry monitor inspects the access token.
//   - RenewalMargin: remaining validity below which a renewal is started.
//   - RequestTimeout: per-request HTTP timeout.
//   - RefreshTimeout: upper bound for one renewal, waiters included.
//   - StateDSN: SQLite DSN of the local credential store.
type Config struct {
	ServerURL      string
	CheckInterval  time.Duration
	RenewalMargin  time.Duration
	RequestTimeout time.Duration
	RefreshTimeout time.Duration
	StateDSN       string
	LogLevel       string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://127.0.0.1:8080"
	c.CheckInterval = 5 * time.Second
	c.RenewalMargin = time.Minute
	c.RequestTimeout = 10 * time.Second
	c.RefreshTimeout = 15 * time.Second
	c.StateDSN = "fooddelivery.db"
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// the environment, JSON (if present) and command-line flags (if present).
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
