// Package journal keeps an append-only audit log of finished transfers in
// SQLite. It is write-mostly: nothing in a run reads it back to decide what
// to transfer, so losing or deleting it never changes pipeline behavior.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dirPerms = 0o700

const (
	sqlInsert = `INSERT INTO transfers
		(run_id, item_id, name, state, succeeded, reason, media_item_id, album_id, dry_run, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlRecent = `SELECT run_id, item_id, name, state, succeeded, reason,
		media_item_id, album_id, dry_run, recorded_at
		FROM transfers ORDER BY recorded_at DESC, id DESC LIMIT ?`
)

// Entry is one finished item.
type Entry struct {
	RunID       string    `json:"run_id"`
	ItemID      string    `json:"item_id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	Succeeded   bool      `json:"succeeded"`
	Reason      string    `json:"reason,omitempty"`
	MediaItemID string    `json:"media_item_id,omitempty"`
	AlbumID     string    `json:"album_id,omitempty"`
	DryRun      bool      `json:"dry_run"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Journal is the sole writer to the journal database.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (creating if needed) the journal database at path and applies
// pending migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", path, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("journal opened", slog.String("path", path))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Record appends e. A zero RecordedAt is set to the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = j.nowFunc()
	}

	_, err := j.db.ExecContext(ctx, sqlInsert,
		e.RunID, e.ItemID, e.Name, e.State, e.Succeeded, e.Reason,
		e.MediaItemID, e.AlbumID, e.DryRun, e.RecordedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("journal: recording %s: %w", e.ItemID, err)
	}

	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, sqlRecent, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: querying recent entries: %w", err)
	}
	defer rows.Close()

	var out []Entry

	for rows.Next() {
		var (
			e          Entry
			recordedAt int64
		)

		if err := rows.Scan(&e.RunID, &e.ItemID, &e.Name, &e.State, &e.Succeeded, &e.Reason,
			&e.MediaItemID, &e.AlbumID, &e.DryRun, &recordedAt); err != nil {
			return nil, fmt.Errorf("journal: scanning entry: %w", err)
		}

		e.RecordedAt = time.Unix(0, recordedAt)
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating entries: %w", err)
	}

	return out, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
