// Package journal persists task history in SQLite so `parishad job` and the
// status API can report on past and in-flight tasks.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// maxStderrBytes caps stderr captured into the journal.
const maxStderrBytes = 64 * 1024

type Journal struct {
	db *sql.DB
}

// Open opens (and creates if needed) the SQLite journal at path and ensures
// required tables exist.
func Open(ctx context.Context, path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("journal path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// OpenDB wraps an already-open database. Used by tests.
func OpenDB(ctx context.Context, db *sql.DB) (*Journal, error) {
	if err := bootstrap(ctx, db); err != nil {
		return nil, err
	}
	return &Journal{db: db}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS task_log (
  id            TEXT PRIMARY KEY,
  prompt        TEXT NOT NULL,
  prompt_digest TEXT NOT NULL,
  status        TEXT NOT NULL,
  reason        TEXT,
  stderr        TEXT,
  submitted_at  TEXT NOT NULL,
  completed_at  TEXT
);`,
		`CREATE INDEX IF NOT EXISTS task_log_status_submitted_at_idx ON task_log(status, submitted_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap journal: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordSubmitted inserts a running task row.
func (j *Journal) RecordSubmitted(ctx context.Context, sub Submission) error {
	if sub.ID == "" {
		return fmt.Errorf("submission id is empty")
	}

	_, err := j.db.ExecContext(ctx, `
INSERT INTO task_log(id, prompt, prompt_digest, status, submitted_at)
VALUES(?, ?, ?, ?, ?);
`, sub.ID, sub.Prompt, sub.PromptDigest, StatusRunning, sub.SubmittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record submitted task: %w", err)
	}
	return nil
}

// RecordOutcome marks a task terminal.
func (j *Journal) RecordOutcome(ctx context.Context, c Completion) error {
	if c.ID == "" {
		return fmt.Errorf("completion id is empty")
	}
	switch c.Status {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusCancelled:
	default:
		return fmt.Errorf("invalid terminal status: %q", c.Status)
	}

	stderr := c.Stderr
	if len(stderr) > maxStderrBytes {
		stderr = stderr[:maxStderrBytes]
	}

	var reasonVal, stderrVal any
	if c.Reason != "" {
		reasonVal = c.Reason
	}
	if stderr != "" {
		stderrVal = stderr
	}

	res, err := j.db.ExecContext(ctx, `
UPDATE task_log
SET status = ?, reason = ?, stderr = ?, completed_at = ?
WHERE id = ?;
`, c.Status, reasonVal, stderrVal, c.CompletedAt.UTC().Format(time.RFC3339Nano), c.ID)
	if err != nil {
		return fmt.Errorf("record task outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("record task outcome: %w", err)
	}
	if n == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// Get returns one journal entry by task ID.
func (j *Journal) Get(ctx context.Context, id string) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, `
SELECT id, prompt, prompt_digest, status, reason, stderr, submitted_at, completed_at
FROM task_log
WHERE id = ?;
`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get journal entry: %w", err)
	}
	return e, nil
}

// List returns the most recent entries, newest first.
func (j *Journal) List(ctx context.Context, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := j.db.QueryContext(ctx, `
SELECT id, prompt, prompt_digest, status, reason, stderr, submitted_at, completed_at
FROM task_log
ORDER BY submitted_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return out, nil
}

// Prune deletes terminal entries older than retention.
func (j *Journal) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}

	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := j.db.ExecContext(ctx, `
DELETE FROM task_log
WHERE status != ? AND completed_at IS NOT NULL AND completed_at < ?;
`, StatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e            Entry
		statusS      string
		reason       sql.NullString
		stderr       sql.NullString
		submittedAtS string
		completedAtS sql.NullString
	)
	if err := row.Scan(&e.ID, &e.Prompt, &e.PromptDigest, &statusS, &reason, &stderr, &submittedAtS, &completedAtS); err != nil {
		return nil, err
	}

	e.Status = Status(statusS)
	if reason.Valid {
		e.Reason = &reason.String
	}
	if stderr.Valid {
		e.Stderr = &stderr.String
	}
	if t, err := time.Parse(time.RFC3339Nano, submittedAtS); err == nil {
		e.SubmittedAt = t
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			e.CompletedAt = &t
		}
	}
	return &e, nil
}
