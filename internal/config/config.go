// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for onedrive-photos. Values resolve
// through defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration parsed from a TOML file. All keys
// are flat; the embedded sections only group related fields.
type Config struct {
	TransferConfig
	ImageConfig
	AuthConfig
	StorageConfig
	LoggingConfig
	NetworkConfig
}

// TransferConfig selects what is transferred and how runs are paced.
type TransferConfig struct {
	SourceFolder      string   `toml:"source_folder"`
	AlbumTitle        string   `toml:"album_title"`
	BatchSize         int      `toml:"batch_size"`
	BatchDelay        string   `toml:"batch_delay"`
	Concurrency       int      `toml:"concurrency"`
	IncludeExtensions []string `toml:"include_extensions"`
	JunkExtensions    []string `toml:"junk_extensions"`
	DryRun            bool     `toml:"dry_run"`
}

// ImageConfig controls the re-encoded upload.
type ImageConfig struct {
	MaxPixels   int `toml:"max_pixels"`
	JPEGQuality int `toml:"jpeg_quality"`
}

// AuthConfig names the OAuth applications and where their tokens live.
// Empty token paths resolve to the data directory.
type AuthConfig struct {
	OneDriveClientID    string `toml:"onedrive_client_id"`
	OneDriveTokenPath   string `toml:"onedrive_token_path"`
	GoogleClientSecrets string `toml:"google_client_secrets"`
	GoogleTokenPath     string `toml:"google_token_path"`
}

// StorageConfig holds local paths. An empty journal_path disables the
// transfer journal.
type StorageConfig struct {
	TempDir     string `toml:"temp_dir"`
	JournalPath string `toml:"journal_path"`
}

// LoggingConfig controls log output behavior: level, format, and rotation.
type LoggingConfig struct {
	LogLevel         string `toml:"log_level"`
	LogFile          string `toml:"log_file"`
	LogFormat        string `toml:"log_format"`
	LogRetentionDays int    `toml:"log_retention_days"`
}

// NetworkConfig controls HTTP client timeouts.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string // --config flag (empty = use default)
	DryRun     *bool  // --dry-run flag
	BatchSize  *int   // --batch-size flag
}
