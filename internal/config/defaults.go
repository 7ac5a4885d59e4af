package config

// Default values for configuration options.
const (
	defaultBatchSize        = 20
	defaultBatchDelay       = "1s"
	defaultConcurrency      = 4
	defaultMaxPixels        = 16_777_216
	defaultJPEGQuality      = 85
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
	defaultLogRetentionDays = 30
	defaultConnectTimeout   = "10s"
	defaultDataTimeout      = "60s"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		TransferConfig: defaultTransferConfig(),
		ImageConfig:    defaultImageConfig(),
		LoggingConfig:  defaultLoggingConfig(),
		NetworkConfig:  defaultNetworkConfig(),
	}
}

func defaultTransferConfig() TransferConfig {
	return TransferConfig{
		BatchSize:         defaultBatchSize,
		BatchDelay:        defaultBatchDelay,
		Concurrency:       defaultConcurrency,
		IncludeExtensions: []string{".png"},
		JunkExtensions:    []string{".xjr"},
	}
}

func defaultImageConfig() ImageConfig {
	return ImageConfig{
		MaxPixels:   defaultMaxPixels,
		JPEGQuality: defaultJPEGQuality,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:         defaultLogLevel,
		LogFormat:        defaultLogFormat,
		LogRetentionDays: defaultLogRetentionDays,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}
