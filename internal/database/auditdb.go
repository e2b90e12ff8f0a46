package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/webaudit/webaudit/internal/model"
)

// AuditDB stores completed audit runs for history listing and diffing.
type AuditDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures AuditDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an AuditDB under dbDir.
func Open(dbDir string, opts Options) (*AuditDB, error) {
	dbPath := filepath.Join(dbDir, "webaudit.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw refuses to create a
	// new file, mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &AuditDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *AuditDB) Close() error {
	return adb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (adb *AuditDB) createTables() error {
	schema := `
	-- One row per completed audit run
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		state TEXT NOT NULL,
		pages_crawled INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON runs(target);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

	-- One row per audit record, owned by a run
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		url TEXT NOT NULL,
		link_url TEXT NOT NULL DEFAULT '',
		link_text TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		response_time_ms INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id);
	CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// RunMetadata summarizes a stored run without its records.
type RunMetadata struct {
	// ID is the run's database identifier.
	ID int64

	// Target is the audited base URL.
	Target string

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time
	FinishedAt time.Time

	// State is the final scheduler state.
	State model.State

	// PagesCrawled is the number of pages visited.
	PagesCrawled int

	// ErrorMessage is set for aborted runs.
	ErrorMessage string
}

// SaveRun persists a completed report and all its records in one
// transaction. It returns the new run's ID.
func (adb *AuditDB) SaveRun(ctx context.Context, report *model.AuditReport) (int64, error) {
	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO runs (target, started_at, finished_at, state, pages_crawled, error_message)
	VALUES (?, ?, ?, ?, ?, ?)`,
		report.Target,
		report.StartedAt.UTC().Format(time.DateTime),
		report.FinishedAt.UTC().Format(time.DateTime),
		string(report.State),
		report.PagesCrawled,
		report.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("run id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO records (run_id, type, url, link_url, link_text, status, response_time_ms, error_message, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range report.Records {
		_, err := stmt.ExecContext(ctx,
			runID,
			string(rec.Type),
			rec.URL,
			rec.LinkURL,
			rec.LinkText,
			string(rec.Status),
			rec.ResponseTime.Milliseconds(),
			rec.ErrorMessage,
			rec.Timestamp.UTC().Format(time.DateTime),
		)
		if err != nil {
			return 0, fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// ListRuns returns run metadata, newest first. An empty target lists
// runs for all targets.
func (adb *AuditDB) ListRuns(ctx context.Context, target string) ([]RunMetadata, error) {
	query := `
	SELECT id, target, started_at, finished_at, state, pages_crawled, error_message
	FROM runs
	`
	args := make([]interface{}, 0, 1)
	if target != "" {
		query += " WHERE target = ?"
		args = append(args, target)
	}
	query += " ORDER BY started_at DESC, id DESC"

	rows, err := adb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMetadata
	for rows.Next() {
		var run RunMetadata
		var state, startedAt, finishedAt string
		if err := rows.Scan(&run.ID, &run.Target, &startedAt, &finishedAt,
			&state, &run.PagesCrawled, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.State = model.State(state)
		run.StartedAt = parseTimestamp(startedAt)
		run.FinishedAt = parseTimestamp(finishedAt)
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// GetRun retrieves one run's metadata by ID.
func (adb *AuditDB) GetRun(ctx context.Context, runID int64) (*RunMetadata, error) {
	var run RunMetadata
	var state, startedAt, finishedAt string
	err := adb.db.QueryRowContext(ctx, `
	SELECT id, target, started_at, finished_at, state, pages_crawled, error_message
	FROM runs WHERE id = ?`, runID).Scan(
		&run.ID, &run.Target, &startedAt, &finishedAt,
		&state, &run.PagesCrawled, &run.ErrorMessage,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.State = model.State(state)
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)
	return &run, nil
}

// GetRunRecords retrieves a run's records in production order.
func (adb *AuditDB) GetRunRecords(ctx context.Context, runID int64) ([]model.Record, error) {
	rows, err := adb.db.QueryContext(ctx, `
	SELECT type, url, link_url, link_text, status, response_time_ms, error_message, timestamp
	FROM records WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("get run records: %w", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var rec model.Record
		var recType, status, timestamp string
		var responseMs int64
		if err := rows.Scan(&recType, &rec.URL, &rec.LinkURL, &rec.LinkText,
			&status, &responseMs, &rec.ErrorMessage, &timestamp); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Type = model.RecordType(recType)
		rec.Status = model.Status(status)
		rec.ResponseTime = time.Duration(responseMs) * time.Millisecond
		rec.Timestamp = parseTimestamp(timestamp)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// LatestRunID returns the most recent run ID for a target, or
// ErrRunNotFound when the target has never been audited.
func (adb *AuditDB) LatestRunID(ctx context.Context, target string) (int64, error) {
	var id int64
	err := adb.db.QueryRowContext(ctx, `
	SELECT id FROM runs WHERE target = ? ORDER BY started_at DESC, id DESC LIMIT 1`,
		target).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: target %s", ErrRunNotFound, target)
	}
	if err != nil {
		return 0, fmt.Errorf("latest run: %w", err)
	}
	return id, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
