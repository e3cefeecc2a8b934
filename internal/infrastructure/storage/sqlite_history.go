package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"FeedDigest/internal/domain"
	"FeedDigest/internal/ports"
)

const runsTable = "runs"

const schema = `CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	stamp TEXT NOT NULL,
	generated_at TEXT NOT NULL,
	source_dir TEXT NOT NULL,
	selected_feeds INTEGER NOT NULL,
	failed_feeds INTEGER NOT NULL,
	failed_rate REAL NOT NULL,
	format_retried INTEGER NOT NULL,
	format_passed INTEGER NOT NULL,
	narrative_path TEXT NOT NULL,
	structured_path TEXT NOT NULL
)`

var runColumns = []string{
	"run_id", "stamp", "generated_at", "source_dir",
	"selected_feeds", "failed_feeds", "failed_rate",
	"format_retried", "format_passed",
	"narrative_path", "structured_path",
}

// SQLiteHistory appends finished runs to a local SQLite ledger.
type SQLiteHistory struct {
	db *sql.DB
}

var _ ports.RunHistory = (*SQLiteHistory)(nil)

// OpenSQLiteHistory opens (and migrates) the ledger at path.
func OpenSQLiteHistory(ctx context.Context, path string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &SQLiteHistory{db: db}, nil
}

// Close releases the database handle.
func (h *SQLiteHistory) Close() error {
	if h.db == nil {
		return nil
	}
	return h.db.Close()
}

// RecordRun inserts one run row.
func (h *SQLiteHistory) RecordRun(ctx context.Context, run domain.RunRecord) error {
	query, args, err := sq.Insert(runsTable).
		Columns(runColumns...).
		Values(
			run.RunID,
			run.Stamp,
			run.GeneratedAt.UTC().Format(time.RFC3339Nano),
			run.SourceDir,
			run.SelectedFeedCount,
			run.FailedFeedCount,
			run.FailedRate,
			run.FormatValidationRetried,
			run.FormatValidationPassed,
			run.NarrativePath,
			run.StructuredPath,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := h.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// LastRun returns the most recently generated run, ok=false on an empty ledger.
func (h *SQLiteHistory) LastRun(ctx context.Context) (domain.RunRecord, bool, error) {
	query, args, err := sq.Select(runColumns...).
		From(runsTable).
		OrderBy("generated_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.RunRecord{}, false, fmt.Errorf("build select: %w", err)
	}

	var (
		run         domain.RunRecord
		generatedAt string
	)
	err = h.db.QueryRowContext(ctx, query, args...).Scan(
		&run.RunID,
		&run.Stamp,
		&generatedAt,
		&run.SourceDir,
		&run.SelectedFeedCount,
		&run.FailedFeedCount,
		&run.FailedRate,
		&run.FormatValidationRetried,
		&run.FormatValidationPassed,
		&run.NarrativePath,
		&run.StructuredPath,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RunRecord{}, false, nil
	}
	if err != nil {
		return domain.RunRecord{}, false, fmt.Errorf("query last run: %w", err)
	}

	run.GeneratedAt, err = time.Parse(time.RFC3339Nano, generatedAt)
	if err != nil {
		return domain.RunRecord{}, false, fmt.Errorf("parse generated_at: %w", err)
	}
	return run, true, nil
}
