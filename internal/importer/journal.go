package importer

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
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal records import and delete runs with their per-topic outcomes in
// a local SQLite database. It is strictly an audit trail: journal failures
// are logged by callers, never fatal to a run.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// RunSummary is one journaled run.
type RunSummary struct {
	ID         int64
	Kind       string
	StartedAt  time.Time
	FinishedAt time.Time
	Topics     int
	Failed     int
}

// OpenJournal opens (creating if needed) the journal database at dbPath
// and applies pending migrations.
func OpenJournal(dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("importer: creating journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("importer: opening journal: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("importer: setting WAL mode: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("importer: enabling foreign keys: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, logger: logger}, nil
}

// runMigrations applies all pending schema migrations.
// Uses the goose v3 Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("importer: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("importer: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("importer: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied journal migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// BeginRun records the start of a run and returns its ID.
func (j *Journal) BeginRun(ctx context.Context, kind string) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (kind, started_at) VALUES (?, ?)",
		kind, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("importer: recording run start: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("importer: reading run id: %w", err)
	}

	return id, nil
}

// FinishRun records the outcomes and completion time of a run.
func (j *Journal) FinishRun(ctx context.Context, runID int64, outcomes []Outcome) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("importer: starting journal transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for seq, o := range outcomes {
		var errText sql.NullString
		if o.Err != nil {
			errText = sql.NullString{String: o.Err.Error(), Valid: true}
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO topic_outcomes (run_id, seq, topic_id, state, error) VALUES (?, ?, ?, ?, ?)",
			runID, seq, o.TopicID, o.State.String(), errText,
		); err != nil {
			return fmt.Errorf("importer: recording outcome for %s: %w", o.TopicID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, topics = ?, failed = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), len(outcomes), FailedCount(outcomes), runID,
	); err != nil {
		return fmt.Errorf("importer: recording run finish: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("importer: committing journal transaction: %w", err)
	}

	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT id, kind, started_at, COALESCE(finished_at, ''), topics, failed FROM runs ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("importer: listing runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary

	for rows.Next() {
		var (
			r                 RunSummary
			started, finished string
		)

		if err := rows.Scan(&r.ID, &r.Kind, &started, &finished, &r.Topics, &r.Failed); err != nil {
			return nil, fmt.Errorf("importer: scanning run row: %w", err)
		}

		r.StartedAt, _ = time.Parse(time.RFC3339, started)

		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}

		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("importer: iterating run rows: %w", err)
	}

	return runs, nil
}

// RunOutcomes returns the per-topic outcomes of one run in recorded order.
func (j *Journal) RunOutcomes(ctx context.Context, runID int64) ([]JournaledOutcome, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT topic_id, state, COALESCE(error, '') FROM topic_outcomes WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("importer: listing outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []JournaledOutcome

	for rows.Next() {
		var o JournaledOutcome

		if err := rows.Scan(&o.TopicID, &o.State, &o.Error); err != nil {
			return nil, fmt.Errorf("importer: scanning outcome row: %w", err)
		}

		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("importer: iterating outcome rows: %w", err)
	}

	return outcomes, nil
}

// JournaledOutcome is an outcome as read back from the journal.
type JournaledOutcome struct {
	TopicID string
	State   string
	Error   string
}
