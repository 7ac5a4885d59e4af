package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validation range constants.
const (
	minBatchSize      = 1
	maxBatchSize      = 50 // mediaItems:batchCreate limit
	minConcurrency    = 1
	maxConcurrency    = 32
	minMaxPixels      = 1
	minJPEGQuality    = 1
	maxJPEGQuality    = 100
	minLogRetention   = 1
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTransfer(&cfg.TransferConfig)...)
	errs = append(errs, validateImage(&cfg.ImageConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)

	return errors.Join(errs...)
}

// ValidateRun checks the settings a transfer run needs beyond Validate:
// the source folder, the album title, and both OAuth applications.
func ValidateRun(cfg *Config) error {
	var errs []error

	if strings.Trim(strings.TrimSpace(cfg.SourceFolder), "/") == "" {
		errs = append(errs, fmt.Errorf("source_folder: must name a folder (set it or %s)", EnvSourceFolder))
	}

	if strings.TrimSpace(cfg.AlbumTitle) == "" {
		errs = append(errs, fmt.Errorf("album_title: must not be empty (set it or %s)", EnvAlbumTitle))
	}

	errs = append(errs, validateAuth(&cfg.AuthConfig)...)

	return errors.Join(errs...)
}

// ValidateAuth checks that both OAuth applications are configured.
func ValidateAuth(cfg *Config) error {
	return errors.Join(validateAuth(&cfg.AuthConfig)...)
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.OneDriveClientID == "" {
		errs = append(errs, fmt.Errorf("onedrive_client_id: must be set (or %s)", EnvOneDriveClientID))
	}

	if a.GoogleClientSecrets == "" {
		errs = append(errs, fmt.Errorf("google_client_secrets: must be set (or %s)", EnvGoogleSecrets))
	}

	return errs
}

func validateTransfer(t *TransferConfig) []error {
	var errs []error

	if t.BatchSize < minBatchSize || t.BatchSize > maxBatchSize {
		errs = append(errs, fmt.Errorf("batch_size: must be between %d and %d, got %d",
			minBatchSize, maxBatchSize, t.BatchSize))
	}

	if t.Concurrency < minConcurrency || t.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("concurrency: must be between %d and %d, got %d",
			minConcurrency, maxConcurrency, t.Concurrency))
	}

	errs = append(errs, validateDurationNonNeg("batch_delay", t.BatchDelay)...)

	if len(t.IncludeExtensions) == 0 {
		errs = append(errs, errors.New("include_extensions: must not be empty"))
	}

	errs = append(errs, validateExtensions("include_extensions", t.IncludeExtensions)...)
	errs = append(errs, validateExtensions("junk_extensions", t.JunkExtensions)...)

	return errs
}

func validateExtensions(field string, exts []string) []error {
	var errs []error

	for _, e := range exts {
		if !strings.HasPrefix(e, ".") || len(e) < 2 || strings.ContainsAny(e, "/\\ ") {
			errs = append(errs, fmt.Errorf("%s: %q must look like \".png\"", field, e))
		}
	}

	return errs
}

func validateImage(i *ImageConfig) []error {
	var errs []error

	if i.MaxPixels < minMaxPixels {
		errs = append(errs, fmt.Errorf("max_pixels: must be >= %d, got %d", minMaxPixels, i.MaxPixels))
	}

	if i.JPEGQuality < minJPEGQuality || i.JPEGQuality > maxJPEGQuality {
		errs = append(errs, fmt.Errorf("jpeg_quality: must be between %d and %d, got %d",
			minJPEGQuality, maxJPEGQuality, i.JPEGQuality))
	}

	return errs
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	if l.LogRetentionDays < minLogRetention {
		errs = append(errs, fmt.Errorf("log_retention_days: must be >= %d, got %d",
			minLogRetention, l.LogRetentionDays))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}
