package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig           = "ONEDRIVE_PHOTOS_CONFIG"
	EnvSourceFolder     = "ONEDRIVE_PHOTOS_SOURCE_FOLDER"
	EnvAlbumTitle       = "ONEDRIVE_PHOTOS_ALBUM"
	EnvOneDriveClientID = "ONEDRIVE_PHOTOS_ONEDRIVE_CLIENT_ID"
	EnvGoogleSecrets    = "ONEDRIVE_PHOTOS_GOOGLE_SECRETS"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath          string // ONEDRIVE_PHOTOS_CONFIG: override config file path
	SourceFolder        string // ONEDRIVE_PHOTOS_SOURCE_FOLDER
	AlbumTitle          string // ONEDRIVE_PHOTOS_ALBUM
	OneDriveClientID    string // ONEDRIVE_PHOTOS_ONEDRIVE_CLIENT_ID
	GoogleClientSecrets string // ONEDRIVE_PHOTOS_GOOGLE_SECRETS
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:          os.Getenv(EnvConfig),
		SourceFolder:        os.Getenv(EnvSourceFolder),
		AlbumTitle:          os.Getenv(EnvAlbumTitle),
		OneDriveClientID:    os.Getenv(EnvOneDriveClientID),
		GoogleClientSecrets: os.Getenv(EnvGoogleSecrets),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from each existing file into the process
// environment. Variables already set are left alone; missing files are
// skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}

	return nil
}
