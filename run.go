package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-photos/internal/config"
	"github.com/tonimelisma/onedrive-photos/internal/credential"
	"github.com/tonimelisma/onedrive-photos/internal/graph"
	"github.com/tonimelisma/onedrive-photos/internal/journal"
	"github.com/tonimelisma/onedrive-photos/internal/photos"
	"github.com/tonimelisma/onedrive-photos/internal/pipeline"
	"github.com/tonimelisma/onedrive-photos/internal/transform"
)

// Run flags, bound in newRunCmd() and read by loadConfig when changed.
var (
	flagDryRun    bool
	flagBatchSize int
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"sync"},
		Short:   "Transfer the source folder into the album",
		Long: `Lists the source folder once, deletes junk files, then transfers the
remaining images batch by batch: download, re-encode as JPEG, upload, confirm
in the album, and delete each source whose media item was created.

The first interrupt finishes the current batch and stops; a second one exits
immediately.`,
		Args: cobra.NoArgs,
		RunE: runTransfer,
	}

	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "upload and confirm but do not delete sources")
	cmd.Flags().IntVar(&flagBatchSize, "batch-size", 0, "items per batch (1-50)")

	return cmd
}

func runTransfer(cmd *cobra.Command, _ []string) error {
	cfg := resolvedCfg

	if err := config.ValidateRun(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := buildLogger(cfg)

	unlock, err := acquireRunLock(config.DefaultLockPath())
	if err != nil {
		return err
	}
	defer unlock()

	ctx := shutdownContext(cmd.Context(), logger)

	store, err := newCredentialStore(cfg, logger)
	if err != nil {
		return err
	}

	// Auth failures abort the run before any work.
	for _, provider := range []string{credential.OneDrive, credential.GooglePhotos} {
		if _, err := store.Acquire(ctx, provider); err != nil {
			return err
		}
	}

	// Token refreshes must outlive an interrupt so the current batch can
	// finish.
	tokenCtx := context.WithoutCancel(ctx)

	httpClient := newHTTPClient(cfg)
	source := pipeline.NewGraphSource(graph.NewClient(graph.DefaultBaseURL, httpClient,
		store.TokenSource(tokenCtx, credential.OneDrive), logger))
	dest := photos.NewClient(photos.DefaultBaseURL, httpClient,
		store.TokenSource(tokenCtx, credential.GooglePhotos), logger)
	tr := &transform.Transformer{MaxPixels: cfg.MaxPixels, Quality: cfg.JPEGQuality, Logger: logger}

	var opts []pipeline.Option

	if cfg.JournalPath != "" {
		j, err := journal.Open(ctx, cfg.JournalPath, logger)
		if err != nil {
			return err
		}
		defer j.Close()

		opts = append(opts, pipeline.WithRecorder(&journalRecorder{j: j, dryRun: cfg.DryRun}))
	}

	orch, err := pipeline.New(pipelineConfig(cfg), source, dest, tr, logger, opts...)
	if err != nil {
		return err
	}

	report, runErr := orch.Run(ctx)
	if report != nil {
		if err := printReport(cmd.OutOrStdout(), report); err != nil {
			return errors.Join(runErr, err)
		}
	}

	return runErr
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	return pipeline.Config{
		SourceFolder:      cfg.SourceFolder,
		AlbumTitle:        cfg.AlbumTitle,
		BatchSize:         cfg.BatchSize,
		BatchDelay:        cfg.BatchDelayDuration(),
		Concurrency:       cfg.Concurrency,
		TempDir:           cfg.TempDir,
		IncludeExtensions: cfg.IncludeExtensions,
		JunkExtensions:    cfg.JunkExtensions,
		DryRun:            cfg.DryRun,
	}
}

// journalRecorder writes each outcome to the transfer journal.
type journalRecorder struct {
	j      *journal.Journal
	dryRun bool
}

func (r *journalRecorder) Record(ctx context.Context, runID, albumID string, oc pipeline.TransferOutcome) error {
	return r.j.Record(ctx, journal.Entry{
		RunID:       runID,
		ItemID:      oc.Item.ID,
		Name:        oc.Item.Name,
		State:       oc.State.String(),
		Succeeded:   oc.Succeeded,
		Reason:      oc.Reason,
		MediaItemID: oc.MediaItemID,
		AlbumID:     albumID,
		DryRun:      r.dryRun,
	})
}

func printReport(w io.Writer, r *pipeline.RunReport) error {
	if flagJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	if flagQuiet {
		return nil
	}

	deleted := "Deleted"
	if r.DryRun {
		deleted = "Would delete"
	}

	fmt.Fprintf(w, "Run %s (%s)\n", r.RunID, r.Duration().Round(100*time.Millisecond))
	fmt.Fprintf(w, "  Listed:      %d (%d candidates, %d ignored)\n", r.Listed, r.Candidates, r.Ignored)
	fmt.Fprintf(w, "  Transferred: %d in %d batches\n", r.Transferred, r.Batches)
	fmt.Fprintf(w, "  %s: %d sources, %d junk\n", deleted, r.Deleted, r.JunkDeleted)

	if n := r.Rejected + r.Failed + r.DeleteFailed + r.JunkFailed; n > 0 {
		fmt.Fprintf(w, "  Problems:    %d rejected, %d failed, %d undeleted, %d junk undeleted\n",
			r.Rejected, r.Failed, r.DeleteFailed, r.JunkFailed)
	}

	var rows [][]string

	for _, oc := range r.Outcomes {
		if oc.State == pipeline.StateSourceDeleted {
			continue
		}

		rows = append(rows, []string{oc.Item.Name, formatSize(oc.Item.Size), oc.State.String(), oc.Reason})
	}

	if len(rows) > 0 {
		fmt.Fprintln(w)
		printTable(w, []string{"NAME", "SIZE", "STATE", "REASON"}, rows)
	}

	return nil
}
