package config

import "os"

// Environment variable names for overrides. Secret-bearing values (API
// key, portal code) are usually supplied here rather than in the file.
const (
	EnvConfig     = "DELPHI_IMPORT_CONFIG"
	EnvAPIKey     = "DELPHI_API_KEY"
	EnvPortalCode = "DELPHI_PORTAL_CODE"
	EnvCMSURL     = "DELPHI_CMS_URL"
	EnvBaseURL    = "DELPHI_BASE_URL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string
	APIKey     string
	PortalCode string
	CMSURL     string
	BaseURL    string
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. Callers apply the relevant fields on top of the file config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		APIKey:     os.Getenv(EnvAPIKey),
		PortalCode: os.Getenv(EnvPortalCode),
		CMSURL:     os.Getenv(EnvCMSURL),
		BaseURL:    os.Getenv(EnvBaseURL),
	}
}

// apply overlays the environment values onto the config.
func (e EnvOverrides) apply(cfg *Config) {
	if e.APIKey != "" {
		cfg.Auth.APIKey = e.APIKey
	}

	if e.PortalCode != "" {
		cfg.Auth.PortalCode = e.PortalCode
	}

	if e.CMSURL != "" {
		cfg.Auth.CMSURL = e.CMSURL
	}

	if e.BaseURL != "" {
		cfg.API.BaseURL = e.BaseURL
	}
}
