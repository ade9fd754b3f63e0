package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/digitalcoach/delphi-import/internal/config"
	"github.com/digitalcoach/delphi-import/internal/delphi"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// errPartialFailure signals that the run completed but some topics failed.
// main exits non-zero without the generic error banner.
var errPartialFailure = errors.New("some topics failed")

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "delphi-import",
		Short:   "AskDelphi process importer",
		Long:    "Imports hierarchical process documents into AskDelphi as typed topic trees.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig() error {
	env := config.ReadEnvOverrides()

	cfg, err := config.Load(flagConfigPath, env)
	if err != nil {
		return err
	}

	resolvedCfg = cfg

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	// Structured JSON when piped, readable text on a terminal.
	if isatty.IsTerminal(os.Stderr.Fd()) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// newHTTPClient returns an HTTP client carrying the configured request
// timeout. Prevents hung connections from blocking the run indefinitely.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: resolvedCfg.RequestTimeout()}
}

// newCredentialSource builds the credential source fixed by auth.mode.
// The mode is chosen once per run; there is no per-call branching.
func newCredentialSource(logger *slog.Logger) (delphi.CredentialSource, error) {
	httpClient := newHTTPClient()
	auth := resolvedCfg.Auth

	switch auth.Mode {
	case config.ModeTraditional:
		return delphi.NewTraditionalSource(
			resolvedCfg.API.BaseURL,
			auth.APIKey,
			auth.Tenant,
			auth.NTAccount,
			auth.ACL,
			auth.ProjectID,
			httpClient,
			logger,
		), nil

	case config.ModeCache:
		scope, err := resolveScope()
		if err != nil {
			return nil, err
		}

		store := delphi.FileStore{Path: auth.TokenCache}

		return delphi.NewPortalSource(scope, auth.PortalURL, auth.PortalCode, store, httpClient, logger), nil

	default:
		return nil, fmt.Errorf("unknown auth mode %q", auth.Mode)
	}
}

// resolveScope derives the tenant/project/ACL scope. A CMS URL, when
// present, takes precedence over the discrete fields.
func resolveScope() (delphi.Scope, error) {
	auth := resolvedCfg.Auth

	if auth.CMSURL != "" {
		return delphi.ParseCMSURL(auth.CMSURL)
	}

	acl := ""
	if len(auth.ACL) > 0 {
		acl = auth.ACL[0]
	}

	return delphi.Scope{
		TenantID:   auth.Tenant,
		ProjectID:  auth.ProjectID,
		ACLEntryID: acl,
	}, nil
}

// newClient assembles the API client with credentials and pacing.
func newClient(logger *slog.Logger) (*delphi.Client, error) {
	creds, err := newCredentialSource(logger)
	if err != nil {
		return nil, err
	}

	limiter := delphi.PacingLimiter(resolvedCfg.RateLimit())

	return delphi.NewClient(resolvedCfg.API.BaseURL, newHTTPClient(), creds, logger, limiter), nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
