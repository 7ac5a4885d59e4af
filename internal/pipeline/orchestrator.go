package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-photos/internal/photos"
	"github.com/tonimelisma/onedrive-photos/pkg/quickxorhash"
)

const (
	tempDirPerms  = 0o700
	tempFilePerms = 0o600
)

// Orchestrator runs one transfer from the source folder into the album.
type Orchestrator struct {
	cfg         Config
	source      Source
	dest        Destination
	transformer Transformer
	recorder    Recorder
	fs          afero.Fs
	logger      *slog.Logger

	include mapset.Set[string]
	junk    mapset.Set[string]

	// sleepFunc waits between batches. Tests override it.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithFs sets the filesystem used for per-item temp files.
func WithFs(fsys afero.Fs) Option {
	return func(o *Orchestrator) { o.fs = fsys }
}

// WithRecorder sets the receiver of terminal outcomes.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// New validates cfg and returns an Orchestrator.
func New(
	cfg Config,
	source Source,
	dest Destination,
	transformer Transformer,
	logger *slog.Logger,
	opts ...Option,
) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	o := &Orchestrator{
		cfg:         cfg,
		source:      source,
		dest:        dest,
		transformer: transformer,
		fs:          afero.NewOsFs(),
		logger:      logger,
		include:     extSet(cfg.IncludeExtensions),
		junk:        extSet(cfg.JunkExtensions),
		sleepFunc:   timeSleep,
		nowFunc:     time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o, nil
}

// Run resolves the album, lists the source once, deletes junk, and
// transfers the remaining candidates batch by batch. The returned report is
// non-nil even when Run fails. Per-item failures never fail the run.
// Canceling ctx stops the run at the next batch boundary.
func (o *Orchestrator) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		DryRun:    o.cfg.DryRun,
		StartedAt: o.nowFunc(),
	}

	logger := o.logger.With(slog.String("run_id", report.RunID))

	logger.Info("transfer run starting",
		slog.String("source_folder", o.cfg.SourceFolder),
		slog.String("album", o.cfg.AlbumTitle),
		slog.Int("batch_size", o.cfg.BatchSize),
		slog.Bool("dry_run", o.cfg.DryRun),
	)

	albumID, err := ResolveAlbum(ctx, o.dest, o.cfg.AlbumTitle, logger)
	if err != nil {
		return o.finish(report, logger), err
	}

	report.AlbumID = albumID

	items, err := o.source.List(ctx, o.cfg.SourceFolder)

	switch {
	case errors.Is(err, ErrSourceNotFound):
		logger.Warn("source folder not found, nothing to transfer",
			slog.String("source_folder", o.cfg.SourceFolder),
		)

		items = nil
	case err != nil:
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %w", ErrTransport, err)
		}

		return o.finish(report, logger), err
	}

	report.Listed = len(items)

	candidates, junk := o.classify(items, report)

	logger.Info("listed source folder",
		slog.Int("listed", report.Listed),
		slog.Int("candidates", len(candidates)),
		slog.Int("junk", len(junk)),
		slog.Int("ignored", report.Ignored),
	)

	o.deleteJunk(ctx, junk, report, logger)

	batches := Batches(candidates, o.cfg.BatchSize)

	for i, batch := range batches {
		if ctx.Err() != nil {
			return o.finish(report, logger), fmt.Errorf("pipeline: run canceled before batch %d: %w", i+1, ctx.Err())
		}

		blog := logger.With(slog.Int("batch", i+1), slog.Int("batches", len(batches)))
		blog.Info("processing batch", slog.Int("items", len(batch)))

		// A started batch runs to completion; cancellation takes effect at
		// the next batch boundary.
		bctx := context.WithoutCancel(ctx)
		outcomes := o.runBatch(bctx, albumID, batch, blog)
		report.Batches++

		for _, oc := range outcomes {
			report.add(oc)
			o.record(bctx, report.RunID, albumID, oc, blog)
		}

		if i < len(batches)-1 && o.cfg.BatchDelay > 0 {
			blog.Debug("pacing before next batch", slog.Duration("delay", o.cfg.BatchDelay))

			if err := o.sleepFunc(ctx, o.cfg.BatchDelay); err != nil {
				return o.finish(report, logger), fmt.Errorf("pipeline: run canceled: %w", err)
			}
		}
	}

	return o.finish(report, logger), nil
}

// classify splits the listing into transfer candidates and junk. Folders
// and other extensions are counted as ignored.
func (o *Orchestrator) classify(items []RemoteItem, report *RunReport) ([]RemoteItem, []RemoteItem) {
	var candidates, junk []RemoteItem

	for _, it := range items {
		ext := extOf(it.Name)

		switch {
		case it.IsFolder:
			report.Ignored++
		case o.junk.Contains(ext):
			junk = append(junk, it)
		case o.include.Contains(ext):
			candidates = append(candidates, it)
		default:
			report.Ignored++
		}
	}

	report.Candidates = len(candidates)

	return candidates, junk
}

// deleteJunk removes junk items from the source without transferring them.
func (o *Orchestrator) deleteJunk(ctx context.Context, junk []RemoteItem, report *RunReport, logger *slog.Logger) {
	for _, it := range junk {
		if o.cfg.DryRun {
			logger.Info("dry run: would delete junk item", slog.String("item_id", it.ID), slog.String("name", it.Name))

			report.JunkDeleted++

			continue
		}

		if err := o.source.Delete(ctx, it); err != nil {
			logger.Warn("deleting junk item failed",
				slog.String("item_id", it.ID),
				slog.String("name", it.Name),
				slog.String("error", err.Error()),
			)

			report.JunkFailed++

			continue
		}

		logger.Info("deleted junk item", slog.String("item_id", it.ID), slog.String("name", it.Name))

		report.JunkDeleted++
	}
}

// runBatch takes every item of batch to a terminal state. Items are
// prepared concurrently, confirmed with one combined call, then deleted.
func (o *Orchestrator) runBatch(ctx context.Context, albumID string, batch []RemoteItem, logger *slog.Logger) []TransferOutcome {
	tasks := make([]*itemTask, len(batch))

	var g errgroup.Group

	g.SetLimit(o.cfg.Concurrency)

	for i, item := range batch {
		task := newItemTask(item)
		tasks[i] = task

		g.Go(func() error {
			o.prepare(ctx, task, logger)
			return nil
		})
	}

	// Workers never return errors; failures live on each task.
	_ = g.Wait()

	o.confirm(ctx, albumID, tasks, logger)
	o.deleteConfirmed(ctx, tasks, logger)

	outcomes := make([]TransferOutcome, len(tasks))
	for i, t := range tasks {
		outcomes[i] = t.outcome()
	}

	return outcomes
}

// prepare downloads, transforms and uploads one item, leaving it at
// StateTokenIssued or StateSkippedDeletion. The local temp file is removed
// on every path.
func (o *Orchestrator) prepare(ctx context.Context, t *itemTask, logger *slog.Logger) {
	ilog := logger.With(slog.String("item_id", t.item.ID), slog.String("name", t.item.Name))

	if err := o.fs.MkdirAll(o.cfg.tempDir(), tempDirPerms); err != nil {
		o.fail(t, fmt.Errorf("%w: creating temp dir: %w", ErrDownload, err), ilog)
		return
	}

	tmpPath := filepath.Join(o.cfg.tempDir(), tempName(t.item))

	defer func() {
		if err := o.fs.Remove(tmpPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			ilog.Warn("removing temp file failed", slog.String("path", tmpPath), slog.String("error", err.Error()))
		}
	}()

	if err := o.download(ctx, t, tmpPath); err != nil {
		o.fail(t, err, ilog)
		return
	}

	raw, err := afero.ReadFile(o.fs, tmpPath)
	if err != nil {
		o.fail(t, fmt.Errorf("%w: reading temp file: %w", ErrDownload, err), ilog)
		return
	}

	if err := t.advance(StateDownloaded); err != nil {
		o.fail(t, err, ilog)
		return
	}

	ilog.Debug("downloaded", slog.Int("bytes", len(raw)))

	res, err := o.transformer.Transform(raw, t.item.CreatedAt)
	if err != nil {
		o.fail(t, fmt.Errorf("%w: %w", ErrTransform, err), ilog)
		return
	}

	if err := t.advance(StateTransformed); err != nil {
		o.fail(t, err, ilog)
		return
	}

	ilog.Debug("transformed",
		slog.Int("width", res.Width),
		slog.Int("height", res.Height),
		slog.Bool("resized", res.Resized),
		slog.Int("bytes", len(res.Data)),
	)

	t.uploadName = uploadName(t.item.Name)

	token, err := o.dest.UploadBytes(ctx, res.Data, t.uploadName)
	if err != nil {
		ilog.Debug("upload rejected", slog.Int("status", photos.StatusCode(err)))
		o.fail(t, fmt.Errorf("pipeline: uploading: %w", err), ilog)
		return
	}

	t.uploadToken = token

	if err := t.advance(StateTokenIssued); err != nil {
		o.fail(t, err, ilog)
		return
	}

	ilog.Info("uploaded, awaiting confirm")
}

func (o *Orchestrator) download(ctx context.Context, t *itemTask, tmpPath string) error {
	f, err := o.fs.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, tempFilePerms)
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", ErrDownload, err)
	}

	h := quickxorhash.New()
	_, dlErr := o.source.Download(ctx, t.item, io.MultiWriter(f, h))
	closeErr := f.Close()

	if dlErr != nil {
		return fmt.Errorf("%w: %w", ErrDownload, dlErr)
	}

	if closeErr != nil {
		return fmt.Errorf("%w: closing temp file: %w", ErrDownload, closeErr)
	}

	// Items listed without a hash are not verified.
	if want := t.item.ContentHash; want != "" {
		if got := base64.StdEncoding.EncodeToString(h.Sum(nil)); got != want {
			return fmt.Errorf("%w: %w: got %s, want %s", ErrDownload, ErrContentMismatch, got, want)
		}
	}

	return nil
}

// confirm issues one BatchCreate for every task holding an upload token
// and moves each to StateConfirmed or StateRejected. A failure of the whole
// call rejects every participating task.
func (o *Orchestrator) confirm(ctx context.Context, albumID string, tasks []*itemTask, logger *slog.Logger) {
	var issued []*itemTask

	for _, t := range tasks {
		if t.state == StateTokenIssued {
			issued = append(issued, t)
		}
	}

	if len(issued) == 0 {
		logger.Info("no items to confirm in batch")
		return
	}

	items := make([]photos.NewMediaItem, len(issued))
	for i, t := range issued {
		items[i] = photos.NewMediaItem{UploadToken: t.uploadToken, FileName: t.uploadName}
	}

	results, err := o.dest.BatchCreate(ctx, albumID, items)
	if err != nil {
		logger.Error("confirm call failed, rejecting batch",
			slog.Int("items", len(issued)),
			slog.Int("status", photos.StatusCode(err)),
			slog.String("error", err.Error()),
		)

		for _, t := range issued {
			o.reject(t, fmt.Errorf("%w: %w", ErrConfirmRejected, err), logger)
		}

		return
	}

	for i, t := range issued {
		if i >= len(results) {
			o.reject(t, fmt.Errorf("%w: no result", ErrConfirmRejected), logger)
			continue
		}

		r := results[i]
		if !r.Created {
			o.reject(t, fmt.Errorf("%w: %s", ErrConfirmRejected, r.Reason), logger)
			continue
		}

		t.mediaItemID = r.MediaItemID

		if err := t.advance(StateConfirmed); err != nil {
			o.fail(t, err, logger)
			continue
		}

		logger.Info("media item created",
			slog.String("item_id", t.item.ID),
			slog.String("name", t.item.Name),
			slog.String("media_item_id", r.MediaItemID),
		)
	}
}

func (o *Orchestrator) reject(t *itemTask, err error, logger *slog.Logger) {
	if advErr := t.advance(StateRejected); advErr != nil {
		o.fail(t, advErr, logger)
		return
	}

	logger.Warn("media item rejected",
		slog.String("item_id", t.item.ID),
		slog.String("name", t.item.Name),
		slog.String("error", err.Error()),
	)

	t.skip(err)
}

// deleteConfirmed removes the source of every confirmed task. A failed
// delete leaves the source for the next run; the media item still exists.
func (o *Orchestrator) deleteConfirmed(ctx context.Context, tasks []*itemTask, logger *slog.Logger) {
	var g errgroup.Group

	g.SetLimit(o.cfg.Concurrency)

	for _, t := range tasks {
		if t.state != StateConfirmed {
			continue
		}

		g.Go(func() error {
			ilog := logger.With(slog.String("item_id", t.item.ID), slog.String("name", t.item.Name))

			if o.cfg.DryRun {
				t.deleteSimulated = true
				ilog.Info("dry run: would delete source item")
			} else if err := o.source.Delete(ctx, t.item); err != nil {
				ilog.Warn("deleting source item failed, leaving it for the next run",
					slog.String("error", err.Error()),
				)
				t.skip(fmt.Errorf("pipeline: deleting source: %w", err))

				return nil
			} else {
				ilog.Info("deleted source item")
			}

			if err := t.advance(StateSourceDeleted); err != nil {
				t.skip(err)
			}

			return nil
		})
	}

	_ = g.Wait()
}

func (o *Orchestrator) fail(t *itemTask, err error, logger *slog.Logger) {
	logger.Warn("item failed, skipping deletion",
		slog.String("item_id", t.item.ID),
		slog.String("state", t.state.String()),
		slog.String("error", err.Error()),
	)

	t.skip(err)
}

func (o *Orchestrator) record(ctx context.Context, runID, albumID string, oc TransferOutcome, logger *slog.Logger) {
	if o.recorder == nil {
		return
	}

	if err := o.recorder.Record(ctx, runID, albumID, oc); err != nil {
		logger.Warn("recording outcome failed",
			slog.String("item_id", oc.Item.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) finish(report *RunReport, logger *slog.Logger) *RunReport {
	report.FinishedAt = o.nowFunc()
	report.log(logger)

	return report
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
