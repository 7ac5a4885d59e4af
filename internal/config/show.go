package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w. This powers the "config show" command. The OAuth client id
// is shown; token contents never are.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration\n\n")

	renderTransferSection(ew, &cfg.TransferConfig)
	renderImageSection(ew, &cfg.ImageConfig)
	renderAuthSection(ew, &cfg.AuthConfig)
	renderStorageSection(ew, &cfg.StorageConfig)
	renderLoggingSection(ew, &cfg.LoggingConfig)
	renderNetworkSection(ew, &cfg.NetworkConfig)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderTransferSection(ew *errWriter, t *TransferConfig) {
	ew.printf("# transfer\n")
	ew.printf("source_folder      = %q\n", t.SourceFolder)
	ew.printf("album_title        = %q\n", t.AlbumTitle)
	ew.printf("batch_size         = %d\n", t.BatchSize)
	ew.printf("batch_delay        = %q\n", t.BatchDelay)
	ew.printf("concurrency        = %d\n", t.Concurrency)
	ew.printf("include_extensions = [%s]\n", joinQuoted(t.IncludeExtensions))
	ew.printf("junk_extensions    = [%s]\n", joinQuoted(t.JunkExtensions))
	ew.printf("dry_run            = %t\n", t.DryRun)
	ew.printf("\n")
}

func renderImageSection(ew *errWriter, i *ImageConfig) {
	ew.printf("# image\n")
	ew.printf("max_pixels   = %d\n", i.MaxPixels)
	ew.printf("jpeg_quality = %d\n", i.JPEGQuality)
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("# auth\n")
	ew.printf("onedrive_client_id    = %q\n", a.OneDriveClientID)
	ew.printf("onedrive_token_path   = %q\n", a.OneDriveTokenPath)
	ew.printf("google_client_secrets = %q\n", a.GoogleClientSecrets)
	ew.printf("google_token_path     = %q\n", a.GoogleTokenPath)
	ew.printf("\n")
}

func renderStorageSection(ew *errWriter, s *StorageConfig) {
	ew.printf("# storage\n")
	ew.printf("temp_dir = %q\n", s.TempDir)

	if s.JournalPath != "" {
		ew.printf("journal_path = %q\n", s.JournalPath)
	}

	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("# logging\n")
	ew.printf("log_level          = %q\n", l.LogLevel)

	if l.LogFile != "" {
		ew.printf("log_file           = %q\n", l.LogFile)
	}

	ew.printf("log_format         = %q\n", l.LogFormat)
	ew.printf("log_retention_days = %d\n", l.LogRetentionDays)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("# network\n")
	ew.printf("connect_timeout = %q\n", n.ConnectTimeout)
	ew.printf("data_timeout    = %q\n", n.DataTimeout)
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
