package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tonimelisma/onedrive-photos/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
// It is available to all subcommands after the root pre-run phase completes.
var resolvedCfg *config.Config

// logFileMaxSizeMB rotates the log file once it reaches this size.
const logFileMaxSizeMB = 10

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "onedrive-photos",
		Short:   "Move scanned images from OneDrive into a Google Photos album",
		Long:    "Drains a OneDrive folder into a shared Google Photos album in paced batches, deleting each source only after its upload is confirmed.",
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig loads .env files, resolves the effective configuration from the
// override chain, and stores the result in resolvedCfg for use by
// subcommands.
func loadConfig(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(".env", config.DefaultDotEnvPath()); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Only pass run flags to the resolver if the user explicitly set them.
	if f := cmd.Flags().Lookup("dry-run"); f != nil && f.Changed {
		cli.DryRun = &flagDryRun
	}

	if f := cmd.Flags().Lookup("batch-size"); f != nil && f.Changed {
		cli.BatchSize = &flagBatchSize
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it. When log_file is set, records also go to a rotated
// file.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	var out io.Writer = os.Stderr

	if cfg != nil {
		level = parseLevel(cfg.LogLevel)
		format = cfg.LogFormat

		if cfg.LogFile != "" {
			out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
				Filename: cfg.LogFile,
				MaxSize:  logFileMaxSizeMB,
				MaxAge:   cfg.LogRetentionDays,
			})
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(newLogHandler(out, format, level, isTerminal(os.Stderr)))
}

func newLogHandler(w io.Writer, format string, level slog.Level, terminal bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !terminal) {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// newHTTPClient returns a client with the configured connect and response
// header timeouts. There is no overall timeout: downloads may be large.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeoutDuration()}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeoutDuration()
	transport.ResponseHeaderTimeout = cfg.DataTimeoutDuration()

	return &http.Client{Transport: transport}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
