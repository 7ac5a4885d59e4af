package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// Token paths and temp_dir are filled in from the data and cache
// directories when unset, and a leading "~/" is expanded in every path.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if env.SourceFolder != "" {
		cfg.SourceFolder = env.SourceFolder
	}

	if env.AlbumTitle != "" {
		cfg.AlbumTitle = env.AlbumTitle
	}

	if env.OneDriveClientID != "" {
		cfg.OneDriveClientID = env.OneDriveClientID
	}

	if env.GoogleClientSecrets != "" {
		cfg.GoogleClientSecrets = env.GoogleClientSecrets
	}

	if cli.DryRun != nil {
		cfg.DryRun = *cli.DryRun
	}

	if cli.BatchSize != nil {
		cfg.BatchSize = *cli.BatchSize
	}

	resolvePaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func resolvePaths(cfg *Config) {
	if cfg.OneDriveTokenPath == "" {
		cfg.OneDriveTokenPath = DefaultTokenPath("onedrive")
	}

	if cfg.GoogleTokenPath == "" {
		cfg.GoogleTokenPath = DefaultTokenPath("google")
	}

	if cfg.TempDir == "" {
		if dir := DefaultCacheDir(); dir != "" {
			cfg.TempDir = filepath.Join(dir, "downloads")
		}
	}

	cfg.OneDriveTokenPath = expandTilde(cfg.OneDriveTokenPath)
	cfg.GoogleTokenPath = expandTilde(cfg.GoogleTokenPath)
	cfg.GoogleClientSecrets = expandTilde(cfg.GoogleClientSecrets)
	cfg.TempDir = expandTilde(cfg.TempDir)
	cfg.JournalPath = expandTilde(cfg.JournalPath)
	cfg.LogFile = expandTilde(cfg.LogFile)
}

// BatchDelayDuration returns batch_delay parsed. Validate guarantees it
// parses; an invalid value yields the default.
func (c *Config) BatchDelayDuration() time.Duration {
	return parseDurationOr(c.BatchDelay, defaultBatchDelay)
}

// ConnectTimeoutDuration returns connect_timeout parsed.
func (c *Config) ConnectTimeoutDuration() time.Duration {
	return parseDurationOr(c.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeoutDuration returns data_timeout parsed.
func (c *Config) DataTimeoutDuration() time.Duration {
	return parseDurationOr(c.DataTimeout, defaultDataTimeout)
}

func parseDurationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
