package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/digitalcoach/delphi-import/internal/config"
	"github.com/digitalcoach/delphi-import/internal/delphi"
	"github.com/digitalcoach/delphi-import/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	var portalCode string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a one-time portal code and cache the tokens",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogin(portalCode)
		},
	}

	cmd.Flags().StringVar(&portalCode, "portal-code", "", "one-time portal code (overrides config)")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached tokens",
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the resolved scope and credential status",
		RunE:  runWhoami,
	}
}

func runLogin(portalCode string) error {
	logger := buildLogger()
	ctx := context.Background()

	if resolvedCfg.Auth.Mode != config.ModeCache {
		return fmt.Errorf("login applies to cache mode only; auth.mode is %q", resolvedCfg.Auth.Mode)
	}

	if portalCode != "" {
		resolvedCfg.Auth.PortalCode = portalCode
	}

	if resolvedCfg.Auth.PortalCode == "" {
		return fmt.Errorf("no portal code; pass --portal-code or set %s "+
			"(codes are single-use, obtain one from the portal's Mobile tab)", config.EnvPortalCode)
	}

	creds, err := newCredentialSource(logger)
	if err != nil {
		return err
	}

	cred, err := creds.Credential(ctx)
	if err != nil {
		return err
	}

	logger.Info("login successful", "expires_at", cred.ExpiresAt)
	statusf("Login successful. Token cached at %s\n", resolvedCfg.Auth.TokenCache)

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	if err := tokenfile.Remove(resolvedCfg.Auth.TokenCache); err != nil {
		return err
	}

	logger.Info("logout successful", "path", resolvedCfg.Auth.TokenCache)
	statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	Mode      string    `json:"mode"`
	Tenant    string    `json:"tenant"`
	Project   string    `json:"project"`
	ACL       string    `json:"acl"`
	LoggedIn  bool      `json:"logged_in"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

func runWhoami(_ *cobra.Command, _ []string) error {
	logger := buildLogger()
	ctx := context.Background()

	out := whoamiOutput{Mode: resolvedCfg.Auth.Mode}

	scope, err := resolveScope()
	if err != nil {
		return err
	}

	out.Tenant = scope.TenantID
	out.Project = scope.ProjectID
	out.ACL = scope.ACLEntryID

	creds, err := newCredentialSource(logger)
	if err != nil {
		return err
	}

	cred, err := creds.Credential(ctx)

	switch {
	case errors.Is(err, delphi.ErrNotLoggedIn):
		out.LoggedIn = false
	case err != nil:
		return err
	default:
		out.LoggedIn = true
		out.ExpiresAt = cred.ExpiresAt
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("Mode:    %s\n", out.Mode)
	fmt.Printf("Tenant:  %s\n", out.Tenant)
	fmt.Printf("Project: %s\n", out.Project)
	fmt.Printf("ACL:     %s\n", out.ACL)

	if out.LoggedIn {
		fmt.Printf("Token:   valid until %s\n", out.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Printf("Token:   not logged in\n")
	}

	return nil
}
