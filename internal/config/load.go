package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// appDir is the per-user directory holding config, token cache, and journal.
const appDir = "delphi-import"

// DefaultConfigPath returns the platform config file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving user config dir: %w", err)
	}

	return filepath.Join(base, appDir, "config.toml"), nil
}

// DefaultTokenCachePath returns the default token cache file location.
func DefaultTokenCachePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving user config dir: %w", err)
	}

	return filepath.Join(base, appDir, "tokens.json"), nil
}

// DefaultJournalPath returns the default run journal location.
func DefaultJournalPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving user config dir: %w", err)
	}

	return filepath.Join(base, appDir, "journal.db"), nil
}

// Load resolves the effective configuration: defaults, then the TOML file,
// then environment overrides. A missing file at the default path is fine;
// a missing file at an explicitly requested path is an error.
func Load(explicitPath string, env EnvOverrides) (*Config, error) {
	cfg := Defaults()

	path := explicitPath
	if path == "" {
		path = env.ConfigPath
	}

	explicit := path != ""

	if path == "" {
		var err error

		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}

	meta, err := toml.DecodeFile(path, &cfg)

	switch {
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// No config file — defaults plus environment may still be complete.
	case err != nil:
		return nil, fmt.Errorf("config: loading %s: %w", path, err)
	default:
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config: %s: unknown key %q", path, undecoded[0].String())
		}
	}

	env.apply(&cfg)

	if cfg.Auth.TokenCache == "" {
		cachePath, err := DefaultTokenCachePath()
		if err != nil {
			return nil, err
		}

		cfg.Auth.TokenCache = cachePath
	}

	if cfg.Import.Journal == "" {
		journalPath, err := DefaultJournalPath()
		if err != nil {
			return nil, err
		}

		cfg.Import.Journal = journalPath
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// validate rejects configurations that cannot produce a working client.
// These failures abort before any network call.
func validate(cfg *Config) error {
	switch cfg.Auth.Mode {
	case ModeTraditional:
		var missing []string

		if cfg.API.BaseURL == "" {
			missing = append(missing, "api.base_url")
		}

		if cfg.Auth.APIKey == "" {
			missing = append(missing, "auth.api_key")
		}

		if cfg.Auth.Tenant == "" {
			missing = append(missing, "auth.tenant")
		}

		if cfg.Auth.NTAccount == "" {
			missing = append(missing, "auth.nt_account")
		}

		if cfg.Auth.ProjectID == "" {
			missing = append(missing, "auth.project_id")
		}

		if len(missing) > 0 {
			return fmt.Errorf("config: traditional mode requires %v", missing)
		}

	case ModeCache:
		if cfg.API.BaseURL == "" {
			return fmt.Errorf("config: cache mode requires api.base_url")
		}

		discrete := cfg.Auth.Tenant != "" && cfg.Auth.ProjectID != "" && len(cfg.Auth.ACL) > 0
		if cfg.Auth.CMSURL == "" && !discrete {
			return fmt.Errorf("config: cache mode requires auth.cms_url or discrete auth.tenant/project_id/acl")
		}

	default:
		return fmt.Errorf("config: unknown auth.mode %q (want %q or %q)",
			cfg.Auth.Mode, ModeTraditional, ModeCache)
	}

	if cfg.API.RequestTimeout != "" {
		if _, err := time.ParseDuration(cfg.API.RequestTimeout); err != nil {
			return fmt.Errorf("config: invalid api.request_timeout: %w", err)
		}
	}

	if cfg.API.RateLimit != "" {
		if _, err := time.ParseDuration(cfg.API.RateLimit); err != nil {
			return fmt.Errorf("config: invalid api.rate_limit: %w", err)
		}
	}

	switch cfg.Logging.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid logging.log_level %q", cfg.Logging.LogLevel)
	}

	return nil
}
