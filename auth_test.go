package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-photos/internal/config"
	"github.com/tonimelisma/onedrive-photos/internal/credential"
)

const testClientSecrets = `{"installed":{
	"client_id":"test-client.apps.googleusercontent.com",
	"client_secret":"test-secret",
	"auth_uri":"https://accounts.google.com/o/oauth2/auth",
	"token_uri":"https://oauth2.googleapis.com/token",
	"redirect_uris":["http://localhost"]
}}`

func writeClientSecrets(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(testClientSecrets), 0o600))

	return path
}

func TestNewCredentialStore_RegistersConfiguredProviders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.OneDriveClientID = "onedrive-app"
	cfg.OneDriveTokenPath = filepath.Join(dir, "onedrive.json")
	cfg.GoogleClientSecrets = writeClientSecrets(t, dir)
	cfg.GoogleTokenPath = filepath.Join(dir, "google.json")

	store, err := newCredentialStore(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{credential.GooglePhotos, credential.OneDrive}, store.Providers())
}

func TestNewCredentialStore_SkipsUnconfiguredProviders(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.OneDriveClientID = "onedrive-app"
	cfg.OneDriveTokenPath = filepath.Join(t.TempDir(), "onedrive.json")

	store, err := newCredentialStore(cfg, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, []string{credential.OneDrive}, store.Providers())
}

func TestNewCredentialStore_BadSecretsFile(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.GoogleClientSecrets = filepath.Join(t.TempDir(), "missing.json")

	_, err := newCredentialStore(cfg, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client secrets")
}

func TestUnconfiguredHint(t *testing.T) {
	t.Parallel()

	unknown := fmt.Errorf("%w: %q", credential.ErrUnknownProvider, "x")

	err := unconfiguredHint(credential.OneDrive, unknown)
	require.ErrorIs(t, err, credential.ErrUnknownProvider)
	assert.Contains(t, err.Error(), "onedrive_client_id")
	assert.Contains(t, err.Error(), config.EnvOneDriveClientID)

	err = unconfiguredHint(credential.GooglePhotos, unknown)
	assert.Contains(t, err.Error(), "google_client_secrets")

	other := errors.New("network down")
	assert.Equal(t, other, unconfiguredHint(credential.OneDrive, other))
}

func TestStatusCommand_JSON(t *testing.T) {
	dir := isolateEnv(t)
	secrets := writeClientSecrets(t, dir)
	path := writeConfig(t, dir, fmt.Sprintf(`
onedrive_client_id = "onedrive-app"
onedrive_token_path = %q
google_client_secrets = %q
google_token_path = %q
`, filepath.Join(dir, "onedrive.json"), secrets, filepath.Join(dir, "google.json")))

	out, err := runCLI(t, "status", "--json", "--config", path)
	require.NoError(t, err)

	var got []statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 2)
	assert.Equal(t, credential.GooglePhotos, got[0].Provider)
	assert.Equal(t, credential.OneDrive, got[1].Provider)
	assert.False(t, got[1].HasToken)
	assert.Equal(t, filepath.Join(dir, "onedrive.json"), got[1].CachePath)
}

func TestStatusCommand_Table(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, `onedrive_client_id = "onedrive-app"`+"\n")

	out, err := runCLI(t, "status", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "PROVIDER")
	assert.Contains(t, out, "onedrive")
	assert.Contains(t, out, "not logged in")
}

func TestStatusCommand_NothingConfigured(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, "")

	_, err := runCLI(t, "status", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no providers configured")
}

func TestLogoutCommand_UnconfiguredProvider(t *testing.T) {
	dir := isolateEnv(t)
	path := writeConfig(t, dir, "")

	_, err := runCLI(t, "logout", "google", "--config", path)
	require.ErrorIs(t, err, credential.ErrUnknownProvider)
	assert.Contains(t, err.Error(), "google_client_secrets")
}

func TestLoginCommand_RejectsUnknownProvider(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "login", "dropbox")
	require.Error(t, err)
}
