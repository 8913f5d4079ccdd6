// Package history keeps a sqlite log of finished autosave jobs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/bamsammich/savewarden/internal/autosave"
)

// FileName is the database file inside the state directory.
const FileName = "history.db"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history: store closed")

// Outcome values stored in the outcome column.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	src         TEXT NOT NULL,
	dst         TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	code        INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	files       INTEGER NOT NULL DEFAULT 0,
	bytes       INTEGER NOT NULL DEFAULT 0,
	flattened   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_started ON jobs(started_at);
`

// Job is one row of the jobs table.
type Job struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Source     string
	Dest       string
	Outcome    string
	Code       int
	Error      string
	Files      int64
	Bytes      int64
	Flattened  int
}

// Duration is the wall time of the job.
func (j Job) Duration() time.Duration {
	return j.FinishedAt.Sub(j.StartedAt)
}

// FromReport converts an autosave report into a row.
func FromReport(r autosave.Report) Job {
	j := Job{
		StartedAt:  r.Started,
		FinishedAt: r.Finished,
		Source:     r.Source,
		Dest:       r.Destination,
		Outcome:    OutcomeOK,
		Code:       r.Code,
		Files:      r.Files,
		Bytes:      r.Bytes,
		Flattened:  r.Flatten.FilesMoved,
	}
	if r.Err != nil {
		j.Outcome = OutcomeFailed
		j.Error = r.Err.Error()
	}
	return j
}

// Store is an open history database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping history database: %w", err)
	}

	// One writer: the autosave worker.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Record inserts j and returns its id.
func (s *Store) Record(ctx context.Context, j Job) (int64, error) {
	if s.db == nil {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (started_at, finished_at, src, dst, outcome, code, error, files, bytes, flattened)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.StartedAt.UTC().Format(time.RFC3339Nano),
		j.FinishedAt.UTC().Format(time.RFC3339Nano),
		j.Source, j.Dest, j.Outcome, j.Code, j.Error, j.Files, j.Bytes, j.Flattened,
	)
	if err != nil {
		return 0, fmt.Errorf("recording job: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns up to n jobs, newest first. n <= 0 returns every job.
func (s *Store) Recent(ctx context.Context, n int) ([]Job, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if n <= 0 {
		n = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, src, dst, outcome, code, error, files, bytes, flattened
		FROM jobs ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("querying jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var (
			j                 Job
			started, finished string
		)
		if err := rows.Scan(&j.ID, &started, &finished, &j.Source, &j.Dest,
			&j.Outcome, &j.Code, &j.Error, &j.Files, &j.Bytes, &j.Flattened); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		if j.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("job %d started_at: %w", j.ID, err)
		}
		if j.FinishedAt, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, fmt.Errorf("job %d finished_at: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// Close checkpoints the WAL and closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	_, ckErr := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	if ckErr != nil {
		return fmt.Errorf("failed to checkpoint history WAL: %w", ckErr)
	}
	return nil
}
