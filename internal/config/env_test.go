package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEnvOverrides(t *testing.T) {
	t.Setenv(EnvConfig, "/etc/odp.toml")
	t.Setenv(EnvSourceFolder, "Scans")
	t.Setenv(EnvAlbumTitle, "Album")
	t.Setenv(EnvOneDriveClientID, "cid")
	t.Setenv(EnvGoogleSecrets, "/secrets.json")

	env := ReadEnvOverrides()
	assert.Equal(t, EnvOverrides{
		ConfigPath:          "/etc/odp.toml",
		SourceFolder:        "Scans",
		AlbumTitle:          "Album",
		OneDriveClientID:    "cid",
		GoogleClientSecrets: "/secrets.json",
	}, env)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(
		EnvAlbumTitle+"=From Dotenv\n"+EnvSourceFolder+"=DotenvFolder\n"), 0o600))

	t.Setenv(EnvAlbumTitle, "")
	require.NoError(t, os.Unsetenv(EnvAlbumTitle))
	t.Setenv(EnvSourceFolder, "Existing")

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	assert.Equal(t, "From Dotenv", os.Getenv(EnvAlbumTitle))
	assert.Equal(t, "Existing", os.Getenv(EnvSourceFolder))
}

func TestLoadDotEnv_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("not a valid line ' \n"), 0o600))

	require.Error(t, LoadDotEnv(path))
}
