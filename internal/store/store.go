// Package store archives aggregation runs in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"freshctx/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// MemoryPath opens a private in-memory archive.
const MemoryPath = ":memory:"

// started_at is stored with a fixed-width layout so string order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is the archived header of one aggregation run.
type RunSummary struct {
	StartedAt       time.Time
	ID              string
	Query           string
	FailedProviders []string
	Limit           int
	RecordCount     int
	Elapsed         time.Duration
}

// Store is a run archive backed by one SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and applies the schema.
// Missing parent directories are created.
func Open(path string) (*Store, error) {
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// one connection: SQLite serializes writers anyway and :memory: is per connection
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes a run and its records in one transaction and returns the run id.
// An empty run.ID is replaced with a new UUID.
func (s *Store) SaveRun(ctx context.Context, run RunSummary, records []models.ContextRecord) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, query, record_limit, started_at, elapsed_ms, record_count, failed_providers)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Query,
		run.Limit,
		run.StartedAt.UTC().Format(timeLayout),
		run.Elapsed.Milliseconds(),
		len(records),
		strings.Join(run.FailedProviders, ","),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (run_id, position, provider, source, title, summary, url, published_at, content, metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		var meta sql.NullString

		if len(r.Metadata) > 0 {
			raw, err := json.Marshal(r.Metadata)
			if err != nil {
				return "", fmt.Errorf("failed to encode metadata for %q: %w", r.Title, err)
			}

			meta = sql.NullString{String: string(raw), Valid: true}
		}

		if _, err := stmt.ExecContext(ctx, run.ID, i, r.Provider, r.Source, r.Title, r.Summary, r.URL, r.PublishedAt, r.Content, meta); err != nil {
			return "", fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}

	return run.ID, nil
}

const runColumns = `id, query, record_limit, started_at, elapsed_ms, record_count, failed_providers`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var (
		run       RunSummary
		startedAt string
		elapsedMs int64
		failed    string
	)

	if err := row.Scan(&run.ID, &run.Query, &run.Limit, &startedAt, &elapsedMs, &run.RecordCount, &failed); err != nil {
		return RunSummary{}, err
	}

	t, err := time.Parse(timeLayout, startedAt)
	if err != nil {
		return RunSummary{}, fmt.Errorf("bad started_at %q for run %s: %w", startedAt, run.ID, err)
	}

	run.StartedAt = t
	run.Elapsed = time.Duration(elapsedMs) * time.Millisecond

	if failed != "" {
		run.FailedProviders = strings.Split(failed, ",")
	}

	return run, nil
}

// Runs lists up to n runs, newest first. n <= 0 lists all.
func (s *Store) Runs(ctx context.Context, n int) ([]RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`

	var args []any
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Run loads one run header.
func (s *Store) Run(ctx context.Context, id string) (RunSummary, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}

	return run, err
}

// Records loads the records of one run in their ranked order.
func (s *Store) Records(ctx context.Context, id string) ([]models.ContextRecord, error) {
	if _, err := s.Run(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT provider, source, title, summary, url, published_at, content, metadata_json
		FROM records WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load records for %s: %w", id, err)
	}
	defer rows.Close()

	var records []models.ContextRecord

	for rows.Next() {
		var (
			r    models.ContextRecord
			meta sql.NullString
		)

		if err := rows.Scan(&r.Provider, &r.Source, &r.Title, &r.Summary, &r.URL, &r.PublishedAt, &r.Content, &meta); err != nil {
			return nil, err
		}

		if meta.Valid {
			if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("bad metadata in run %s: %w", id, err)
			}
		}

		records = append(records, r)
	}

	return records, rows.Err()
}

// Prune deletes every run except the newest keep and returns how many were removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const stale = `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT -1 OFFSET ?`

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to prune records: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	return res.RowsAffected()
}
