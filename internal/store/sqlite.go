package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/oversitehq/oversite/internal/domain"
)

// sqliteTimeLayout is a fixed-width UTC timestamp. Fixed width keeps
// lexical TEXT ordering identical to chronological ordering, which the
// FIFO claim depends on.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store on an embedded SQLite database. It backs
// development and the test suite; the claim statement is a single guarded
// UPDATE, atomic under SQLite's writer lock, so the no-double-claim
// guarantee holds without SKIP LOCKED.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and bootstraps the
// schema. The handle is limited to one connection; SQLite allows a single
// writer anyway and this keeps the driver from returning busy errors under
// concurrent claimers.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS report_jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL CHECK (job_type IN ('audit_report','location_overview')),
		parameters TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued','processing','completed','failed')),
		created_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		error_message TEXT,
		artifact_key TEXT,
		artifact_filename TEXT,
		artifact_content_type TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_report_jobs_status_created_at ON report_jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_report_jobs_type_created_at ON report_jobs(job_type, created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

const sqliteJobColumns = `id, job_type, parameters, status, created_at, started_at, completed_at, error_message, artifact_key, artifact_filename, artifact_content_type`

// Insert creates a queued row, stamping created_at in Go since SQLite has
// no timezone-aware now().
func (s *SQLiteStore) Insert(ctx context.Context, job *domain.ReportJob) error {
	createdAt := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_jobs (id, job_type, parameters, status, created_at)
		VALUES (?, ?, ?, 'queued', ?)`,
		job.ID.String(), job.Type.String(), string(job.Params), createdAt.Format(sqliteTimeLayout),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = domain.JobStatusQueued
	job.CreatedAt = createdAt
	return nil
}

// FindByFingerprint scans jobs of the given type oldest-first and returns
// the first whose derived fingerprint matches.
func (s *SQLiteStore) FindByFingerprint(ctx context.Context, t domain.JobType, fp string) (*domain.ReportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sqliteJobColumns+`
		FROM report_jobs
		WHERE job_type = ?
		ORDER BY created_at, id`,
		t.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		jobFP, err := job.Fingerprint()
		if err != nil {
			continue
		}
		if jobFP == fp {
			return job, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	return nil, ErrNotFound
}

// ClaimNext claims the oldest queued job. The statement re-checks
// status='queued' on the outer UPDATE so it moves exactly one row, and
// SQLite's single-writer lock serializes concurrent claimers.
func (s *SQLiteStore) ClaimNext(ctx context.Context) (*domain.ReportJob, error) {
	startedAt := time.Now().UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE report_jobs
		SET status = 'processing', started_at = ?
		WHERE id = (
			SELECT id FROM report_jobs
			WHERE status = 'queued'
			ORDER BY created_at, id
			LIMIT 1
		)
		AND status = 'queued'
		RETURNING `+sqliteJobColumns,
		startedAt.Format(sqliteTimeLayout),
	)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return job, nil
}

// Complete writes the terminal outcome; last write wins on re-entry.
func (s *SQLiteStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.JobStatus, errMsg string, artifact *domain.ArtifactRef) error {
	if err := validateCompletion(outcome, errMsg, artifact); err != nil {
		return err
	}

	var key, filename, contentType, msg sql.NullString
	if artifact != nil {
		key = sql.NullString{String: artifact.Key, Valid: true}
		filename = sql.NullString{String: artifact.Filename, Valid: true}
		contentType = sql.NullString{String: artifact.ContentType, Valid: true}
	}
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = ?,
		    completed_at = ?,
		    error_message = ?,
		    artifact_key = ?,
		    artifact_filename = ?,
		    artifact_content_type = ?
		WHERE id = ?`,
		outcome.String(), time.Now().UTC().Format(sqliteTimeLayout), msg, key, filename, contentType, id.String(),
	)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob returns a snapshot of one job.
func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.ReportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+sqliteJobColumns+`
		FROM report_jobs
		WHERE id = ?`,
		id.String(),
	)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CountByStatus reports queue depth per status.
func (s *SQLiteStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, count(*)
		FROM report_jobs
		GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("count by status: %w", err)
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanSQLiteJob(sc scanner) (*domain.ReportJob, error) {
	var (
		job         domain.ReportJob
		id          string
		jobType     string
		status      string
		params      string
		createdAt   string
		startedAt   sql.NullString
		completedAt sql.NullString
		errMsg      sql.NullString
		key         sql.NullString
		filename    sql.NullString
		contentType sql.NullString
	)

	err := sc.Scan(
		&id, &jobType, &params, &status, &createdAt,
		&startedAt, &completedAt, &errMsg, &key, &filename, &contentType,
	)
	if err != nil {
		return nil, err
	}

	job.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", id, err)
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Params = []byte(params)
	job.CreatedAt, err = time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	if startedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, startedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse started_at %q: %w", startedAt.String, err)
		}
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t, err := time.Parse(sqliteTimeLayout, completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at %q: %w", completedAt.String, err)
		}
		job.CompletedAt = &t
	}
	job.Error = errMsg.String
	if key.Valid {
		job.Artifact = &domain.ArtifactRef{
			Key:         key.String,
			Filename:    filename.String,
			ContentType: contentType.String,
		}
	}
	return &job, nil
}

// isSQLiteUniqueViolation matches the driver's constraint error text; the
// modernc driver does not export a typed error for it.
func isSQLiteUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: report_jobs.id")
}
