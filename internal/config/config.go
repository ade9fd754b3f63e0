// Package config implements TOML configuration loading with an override
// chain (defaults -> config file -> environment -> CLI flags) for the
// delphi-import CLI.
package config

import (
	"time"
)

// Config is the top-level structure parsed from the TOML config file.
type Config struct {
	API     APIConfig     `toml:"api"`
	Auth    AuthConfig    `toml:"auth"`
	Import  ImportConfig  `toml:"import"`
	Logging LoggingConfig `toml:"logging"`
}

// APIConfig controls HTTP behavior against the editing API.
type APIConfig struct {
	BaseURL string `toml:"base_url"`

	// RequestTimeout bounds every outbound call. A timed-out call is
	// surfaced immediately, never retried.
	RequestTimeout string `toml:"request_timeout"`

	// RateLimit is the pause between consecutive API calls. Empty or "0"
	// disables pacing.
	RateLimit string `toml:"rate_limit"`
}

// AuthConfig selects and parameterizes the authentication mode.
// Mode "traditional" exchanges the API key for session tokens; mode
// "cache" uses the portal code flow with a persistent token cache.
type AuthConfig struct {
	Mode       string   `toml:"mode"`
	APIKey     string   `toml:"api_key"`
	Tenant     string   `toml:"tenant"`
	NTAccount  string   `toml:"nt_account"`
	ACL        []string `toml:"acl"`
	ProjectID  string   `toml:"project_id"`
	CMSURL     string   `toml:"cms_url"`
	PortalURL  string   `toml:"portal_url"`
	PortalCode string   `toml:"portal_code"`
	TokenCache string   `toml:"token_cache"`
}

// ImportConfig controls the import workflow.
type ImportConfig struct {
	SkipCheckout   bool   `toml:"skip_checkout"`
	Replace        bool   `toml:"replace"`
	CheckinComment string `toml:"checkin_comment"`

	// Journal is the run journal database path.
	Journal string `toml:"journal"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// Auth modes.
const (
	ModeTraditional = "traditional"
	ModeCache       = "cache"
)

// Defaults returns the built-in configuration baseline.
func Defaults() Config {
	return Config{
		API: APIConfig{
			RequestTimeout: "30s",
		},
		Auth: AuthConfig{
			Mode: ModeTraditional,
		},
		Logging: LoggingConfig{
			LogLevel: "info",
		},
	}
}

// RequestTimeout parses the configured timeout, falling back to 30s on a
// malformed value (validation rejects those earlier).
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.RequestTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}

	return d
}

// RateLimit parses the configured pacing interval; zero means disabled.
func (c *Config) RateLimit() time.Duration {
	if c.API.RateLimit == "" {
		return 0
	}

	d, err := time.ParseDuration(c.API.RateLimit)
	if err != nil || d < 0 {
		return 0
	}

	return d
}
