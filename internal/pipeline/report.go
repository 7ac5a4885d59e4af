package pipeline

import (
	"errors"
	"log/slog"
	"time"
)

// RunReport summarizes one Run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	AlbumID    string    `json:"album_id,omitempty"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Listed      int `json:"listed"`
	Candidates  int `json:"candidates"`
	Ignored     int `json:"ignored"`
	JunkDeleted int `json:"junk_deleted"`
	JunkFailed  int `json:"junk_failed"`
	Batches     int `json:"batches"`

	// Transferred counts items with a confirmed media item.
	Transferred int `json:"transferred"`
	// Deleted counts confirmed items whose source was removed (or would
	// have been, in a dry run).
	Deleted int `json:"deleted"`
	// Rejected counts uploads the confirm call refused.
	Rejected int `json:"rejected"`
	// Failed counts items that never reached the confirm call.
	Failed int `json:"failed"`
	// DeleteFailed counts confirmed items whose source could not be removed.
	DeleteFailed int `json:"delete_failed"`

	Outcomes []TransferOutcome `json:"outcomes"`
}

func (r *RunReport) add(oc TransferOutcome) {
	r.Outcomes = append(r.Outcomes, oc)

	switch {
	case oc.State == StateSourceDeleted:
		r.Transferred++
		r.Deleted++
	case oc.Succeeded:
		r.Transferred++
		r.DeleteFailed++
	case errors.Is(oc.Err, ErrConfirmRejected):
		r.Rejected++
	default:
		r.Failed++
	}
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}

	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) log(logger *slog.Logger) {
	logger.Info("transfer run finished",
		slog.String("album_id", r.AlbumID),
		slog.Int("listed", r.Listed),
		slog.Int("candidates", r.Candidates),
		slog.Int("batches", r.Batches),
		slog.Int("transferred", r.Transferred),
		slog.Int("deleted", r.Deleted),
		slog.Int("rejected", r.Rejected),
		slog.Int("failed", r.Failed),
		slog.Int("delete_failed", r.DeleteFailed),
		slog.Int("junk_deleted", r.JunkDeleted),
		slog.Duration("duration", r.Duration()),
	)
}
