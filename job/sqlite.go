package job

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL UNIQUE,
	status     TEXT NOT NULL DEFAULT 'pending',
	attempts   INTEGER NOT NULL DEFAULT 0,
	permanent  INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

type SQLiteStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenSQLite opens (and if needed creates) the ledger at path.
func OpenSQLite(path string, log *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY on concurrent claims.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db, log: log}
	if err := s.recoverStale(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// recoverStale requeues jobs a previous process claimed but never finished.
// Invocations don't overlap, so any 'processing' row at open time belongs to
// a run that died mid-flight; leaving it would strand the job forever.
func (s *SQLiteStore) recoverStale() error {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = 'pending', updated_at = ? WHERE status = 'processing'`,
		time.Now().Unix())
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Warn("requeued jobs from interrupted run", "count", n)
	}
	return nil
}

func (s *SQLiteStore) Enqueue(ctx context.Context, source string) (*ImageJob, bool, error) {
	now := time.Now()
	j := &ImageJob{
		ID:        ksuid.New().String(),
		Source:    source,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, source, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(source) DO NOTHING`,
		j.ID, j.Source, j.Status, now.Unix(), now.Unix())
	if err != nil {
		return nil, false, fmt.Errorf("enqueue job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		existing, err := s.getBySource(ctx, source)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	s.log.Info("job enqueued", "job_id", j.ID, "source", source)
	return j, true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*ImageJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, attempts, permanent, last_error, created_at, updated_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

func (s *SQLiteStore) getBySource(ctx context.Context, source string) (*ImageJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, attempts, permanent, last_error, created_at, updated_at
		 FROM jobs WHERE source = ?`, source)
	return scanJob(row)
}

func (s *SQLiteStore) List(ctx context.Context) ([]*ImageJob, error) {
	return s.query(ctx,
		`SELECT id, source, status, attempts, permanent, last_error, created_at, updated_at
		 FROM jobs ORDER BY created_at`)
}

func (s *SQLiteStore) Runnable(ctx context.Context) ([]*ImageJob, error) {
	return s.query(ctx,
		`SELECT id, source, status, attempts, permanent, last_error, created_at, updated_at
		 FROM jobs
		 WHERE status = 'pending' OR (status = 'failed' AND permanent = 0)
		 ORDER BY created_at`)
}

func (s *SQLiteStore) Claim(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs
		 SET status = 'processing', attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND (status = 'pending' OR (status = 'failed' AND permanent = 0))`,
		time.Now().Unix(), id)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteStore) MarkDone(ctx context.Context, id string) error {
	err := s.update(ctx,
		`UPDATE jobs SET status = 'done', last_error = '', updated_at = ? WHERE id = ?`,
		time.Now().Unix(), id)
	if err != nil {
		s.log.Error("job finish(done) failed", "job_id", id, "error", err)
		return err
	}
	s.log.Info("job done", "job_id", id)
	return nil
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string, permanent bool, message string) error {
	err := s.update(ctx,
		`UPDATE jobs SET status = 'failed', permanent = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		boolToInt(permanent), message, time.Now().Unix(), id)
	if err != nil {
		s.log.Error("job finish(failed) failed", "job_id", id, "error", err)
		return err
	}
	s.log.Warn("job failed", "job_id", id, "permanent", permanent, "error", message)
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) update(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]*ImageJob, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var jobs []*ImageJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*ImageJob, error) {
	var (
		j                    ImageJob
		permanent            int
		createdAt, updatedAt int64
	)
	err := row.Scan(&j.ID, &j.Source, &j.Status, &j.Attempts, &permanent, &j.LastError, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	j.Permanent = permanent != 0
	j.CreatedAt = time.Unix(createdAt, 0)
	j.UpdatedAt = time.Unix(updatedAt, 0)
	return &j, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
