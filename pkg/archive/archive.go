// Package archive persists completed batch results in SQLite so history
// survives result-store eviction and process restarts.
package archive

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Srjnnnn/blendgate/pkg/batch"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the SQLite-backed batch archive.
type Store struct {
	sqlDB *sql.DB
}

// Summary is one row of batch history, without per-entry detail.
type Summary struct {
	BatchID     string    `json:"batch_id"`
	Status      string    `json:"status"`
	Total       int       `json:"total"`
	Successful  int       `json:"successful"`
	Failed      int       `json:"failed"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletedAt time.Time `json:"completed_at"`
}

func toMillis(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.UnixMilli(value).UTC()
}

// Open opens the archive database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("archive path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping archive db: %w", err)
	}
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrations fs: %w", err)
	}
	if err := applyMigrations(sqlDB, sub); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Archive writes one batch result and its entries. Re-archiving the same
// batch id replaces the previous rows, so an updated result (for example
// after rollback reports land) supersedes the first write.
func (s *Store) Archive(ctx context.Context, r *batch.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("archive is not configured")
	}
	if r == nil || strings.TrimSpace(r.BatchID) == "" {
		return fmt.Errorf("batch id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO batches (
		   id, status, total, successful, failed, submitted_at, completed_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.BatchID,
		string(r.Status),
		r.Total,
		r.Successful,
		r.Failed,
		toMillis(r.SubmittedAt),
		toMillis(r.CompletedAt),
	); err != nil {
		return fmt.Errorf("archive batch %s: %w", r.BatchID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM batch_entries WHERE batch_id = ?`, r.BatchID); err != nil {
		return fmt.Errorf("clear entries for %s: %w", r.BatchID, err)
	}

	for _, er := range r.Entries {
		outcomeJSON, err := json.Marshal(er)
		if err != nil {
			return fmt.Errorf("encode entry %d of %s: %w", er.Index, r.BatchID, err)
		}
		success := 0
		if er.Outcome != nil && er.Outcome.Success {
			success = 1
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO batch_entries (
			   batch_id, idx, command, state, success, outcome_json
			 ) VALUES (?, ?, ?, ?, ?, ?)`,
			r.BatchID,
			er.Index,
			er.Command,
			string(er.State),
			success,
			string(outcomeJSON),
		); err != nil {
			return fmt.Errorf("archive entry %d of %s: %w", er.Index, r.BatchID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// Get rebuilds one archived batch result. Missing ids return
// batch.ErrNotFound so callers can fall through from the live store with
// a single sentinel.
func (s *Store) Get(ctx context.Context, id string) (*batch.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("archive is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("batch id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, status, total, successful, failed, submitted_at, completed_at
		   FROM batches
		  WHERE id = ?`,
		id,
	)

	var r batch.Result
	var status string
	var submittedAt, completedAt int64
	if err := row.Scan(&r.BatchID, &status, &r.Total, &r.Successful, &r.Failed,
		&submittedAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, batch.ErrNotFound
		}
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	r.Status = batch.Status(status)
	r.SubmittedAt = fromMillis(submittedAt)
	r.CompletedAt = fromMillis(completedAt)

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT outcome_json FROM batch_entries WHERE batch_id = ? ORDER BY idx ASC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("get entries for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcomeJSON string
		if err := rows.Scan(&outcomeJSON); err != nil {
			return nil, fmt.Errorf("get entries for %s: %w", id, err)
		}
		var er batch.EntryResult
		if err := json.Unmarshal([]byte(outcomeJSON), &er); err != nil {
			return nil, fmt.Errorf("decode entry of %s: %w", id, err)
		}
		r.Entries = append(r.Entries, er)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get entries for %s: %w", id, err)
	}

	return &r, nil
}

// List returns up to limit batch summaries, newest submission first.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("archive is not configured")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, status, total, successful, failed, submitted_at, completed_at
		   FROM batches
		  ORDER BY submitted_at DESC, id DESC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var submittedAt, completedAt int64
		if err := rows.Scan(&sum.BatchID, &sum.Status, &sum.Total, &sum.Successful,
			&sum.Failed, &submittedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("list batches: %w", err)
		}
		sum.SubmittedAt = fromMillis(submittedAt)
		sum.CompletedAt = fromMillis(completedAt)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return out, nil
}
