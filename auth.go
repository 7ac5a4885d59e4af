package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-photos/internal/config"
	"github.com/tonimelisma/onedrive-photos/internal/credential"
	"github.com/tonimelisma/onedrive-photos/internal/graph"
)

var providerArgs = []string{credential.OneDrive, credential.GooglePhotos}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "login <onedrive|google>",
		Short:     "Authenticate with OneDrive (device code) or Google Photos (browser)",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: providerArgs,
		RunE:      runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "logout <onedrive|google>",
		Short:     "Remove a saved authentication token",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: providerArgs,
		RunE:      runLogout,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the saved credential state for each provider",
		RunE:  runStatus,
	}
}

// newCredentialStore registers every provider the configuration names.
// Interactive login is only offered when stdin is a terminal.
func newCredentialStore(cfg *config.Config, logger *slog.Logger) (*credential.Store, error) {
	var providers []credential.Provider

	if cfg.OneDriveClientID != "" {
		providers = append(providers, credential.OneDriveProvider(
			cfg.OneDriveClientID,
			cfg.OneDriveTokenPath,
			credential.DeviceCodeFlow(printDeviceCode, logger),
		))
	}

	if cfg.GoogleClientSecrets != "" {
		oauthCfg, err := credential.GoogleConfigFromSecrets(cfg.GoogleClientSecrets)
		if err != nil {
			return nil, err
		}

		providers = append(providers, credential.GoogleProvider(
			oauthCfg,
			cfg.GoogleTokenPath,
			credential.BrowserFlow(nil, logger),
		))
	}

	store := credential.NewStore(logger, providers...)
	store.Interactive = isTerminal(os.Stdin)

	return store, nil
}

// printDeviceCode shows the device code prompt. It is always visible, even
// with --quiet.
func printDeviceCode(da credential.DeviceAuth) {
	fmt.Fprintf(os.Stderr, "To sign in to OneDrive, visit: %s\n", da.VerificationURI)
	fmt.Fprintf(os.Stderr, "Enter code: %s\n", da.UserCode)
}

// unconfiguredHint explains which setting registers a provider.
func unconfiguredHint(provider string, err error) error {
	if !errors.Is(err, credential.ErrUnknownProvider) {
		return err
	}

	switch provider {
	case credential.OneDrive:
		return fmt.Errorf("%w: set onedrive_client_id or %s", err, config.EnvOneDriveClientID)
	case credential.GooglePhotos:
		return fmt.Errorf("%w: set google_client_secrets or %s", err, config.EnvGoogleSecrets)
	default:
		return err
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	provider := args[0]
	logger := buildLogger(resolvedCfg)
	ctx := cmd.Context()

	store, err := newCredentialStore(resolvedCfg, logger)
	if err != nil {
		return err
	}

	// Login is always interactive: the user asked for it.
	store.Interactive = true

	logger.Info("login started", slog.String("provider", provider))

	if _, err := store.Login(ctx, provider); err != nil {
		return unconfiguredHint(provider, err)
	}

	logger.Info("login successful", slog.String("provider", provider))

	if provider == credential.OneDrive {
		printOneDriveUser(ctx, store, logger)
	}

	statusf("Login successful.\n")

	return nil
}

// printOneDriveUser confirms which account was signed in. Failures are
// logged only; the token is already saved.
func printOneDriveUser(ctx context.Context, store *credential.Store, logger *slog.Logger) {
	client := graph.NewClient(graph.DefaultBaseURL, newHTTPClient(resolvedCfg),
		store.TokenSource(ctx, credential.OneDrive), logger)

	user, err := client.Me(ctx)
	if err != nil {
		logger.Warn("could not fetch OneDrive profile", slog.String("error", err.Error()))
		return
	}

	statusf("Signed in to OneDrive as %s (%s)\n", user.DisplayName, user.Email)
}

func runLogout(_ *cobra.Command, args []string) error {
	provider := args[0]
	logger := buildLogger(resolvedCfg)

	store, err := newCredentialStore(resolvedCfg, logger)
	if err != nil {
		return err
	}

	logger.Info("logout started", slog.String("provider", provider))

	if err := store.Logout(provider); err != nil {
		return unconfiguredHint(provider, err)
	}

	logger.Info("logout successful", slog.String("provider", provider))
	statusf("Logged out of %s.\n", provider)

	return nil
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Provider   string `json:"provider"`
	CachePath  string `json:"cache_path"`
	HasToken   bool   `json:"has_token"`
	HasRefresh bool   `json:"has_refresh_token"`
	Expiry     string `json:"expiry,omitempty"`
	Expired    bool   `json:"expired"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(resolvedCfg)

	store, err := newCredentialStore(resolvedCfg, logger)
	if err != nil {
		return err
	}

	names := store.Providers()
	if len(names) == 0 {
		return fmt.Errorf("no providers configured: set onedrive_client_id and google_client_secrets")
	}

	out := make([]statusOutput, 0, len(names))

	for _, name := range names {
		st, err := store.Status(name)
		if err != nil {
			return err
		}

		so := statusOutput{
			Provider:   st.Provider,
			CachePath:  st.CachePath,
			HasToken:   st.HasToken,
			HasRefresh: st.HasRefresh,
			Expired:    st.Expired,
		}

		if !st.Expiry.IsZero() {
			so.Expiry = st.Expiry.Format(time.RFC3339)
		}

		out = append(out, so)
	}

	if flagJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	printStatusTable(cmd, out)

	return nil
}

func printStatusTable(cmd *cobra.Command, out []statusOutput) {
	rows := make([][]string, 0, len(out))

	for _, so := range out {
		state := "not logged in"

		switch {
		case so.HasToken && so.Expired && so.HasRefresh:
			state = "expired (refreshable)"
		case so.HasToken && so.Expired:
			state = "expired"
		case so.HasToken:
			state = "logged in"
		}

		expiry := "-"
		if so.Expiry != "" {
			expiry = so.Expiry
		}

		rows = append(rows, []string{so.Provider, state, expiry, so.CachePath})
	}

	printTable(cmd.OutOrStdout(), []string{"PROVIDER", "STATE", "EXPIRES", "TOKEN FILE"}, rows)
}
