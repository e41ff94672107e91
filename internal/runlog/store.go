// Package runlog persists run provenance in a SQLite database at the
// output root: one row per run plus one row per processed FOV, so a
// partially processed output tree can always be traced back to the runs
// that produced it.
package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"cytopipe/internal/paths"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; old databases are rejected rather than migrated.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match
// the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Run is one pipeline invocation.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	State      string
	Total      int
	Completed  int
	Failed     int
	Cancelled  int
}

// FOVRecord is the recorded outcome of one FOV within a run.
type FOVRecord struct {
	RunID      string
	FOV        int
	StagesDone int
	Error      string
	Cancelled  bool
	RecordedAt time.Time
}

// Store manages provenance persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
}

// Open initializes or connects to the run log inside the output root.
func Open(outputRoot string) (*Store, error) {
	dbPath := paths.RunLog(outputRoot)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, id string, total int) error {
	return s.execWithRetry(ctx,
		"INSERT INTO runs (id, started_at, state, total) VALUES (?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), "running", total)
}

// RecordFOV stores one FOV outcome for a run, replacing a prior record
// for the same FOV so a resumed run keeps the latest outcome.
func (s *Store) RecordFOV(ctx context.Context, runID string, fov, stagesDone int, errMsg string, cancelled bool) error {
	return s.execWithRetry(ctx,
		`INSERT INTO fov_results (run_id, fov, stages_done, error, cancelled, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, fov) DO UPDATE SET
		   stages_done = excluded.stages_done,
		   error = excluded.error,
		   cancelled = excluded.cancelled,
		   recorded_at = excluded.recorded_at`,
		runID, fov, stagesDone, errMsg, boolToInt(cancelled),
		time.Now().UTC().Format(time.RFC3339))
}

// FinishRun closes out a run with its final state and counts.
func (s *Store) FinishRun(ctx context.Context, id, state string, completed, failed, cancelled int) error {
	return s.execWithRetry(ctx,
		`UPDATE runs SET finished_at = ?, state = ?, completed = ?, failed = ?, cancelled = ?
		 WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), state, completed, failed, cancelled, id)
}

// ListRuns returns all recorded runs, most recent first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), state, total, completed, failed, cancelled
		 FROM runs ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.State, &r.Total, &r.Completed, &r.Failed, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FOVResults returns the per-FOV records of one run in FOV order.
func (s *Store) FOVResults(ctx context.Context, runID string) ([]FOVRecord, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, fov, stages_done, error, cancelled, recorded_at
		 FROM fov_results WHERE run_id = ? ORDER BY fov`, runID)
	if err != nil {
		return nil, fmt.Errorf("list fov results: %w", err)
	}
	defer rows.Close()

	var records []FOVRecord
	for rows.Next() {
		var rec FOVRecord
		var cancelled int
		var recorded string
		if err := rows.Scan(&rec.RunID, &rec.FOV, &rec.StagesDone, &rec.Error, &cancelled, &recorded); err != nil {
			return nil, fmt.Errorf("scan fov result: %w", err)
		}
		rec.Cancelled = cancelled != 0
		rec.RecordedAt, _ = time.Parse(time.RFC3339, recorded)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
