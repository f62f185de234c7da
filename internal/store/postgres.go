package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/oversitehq/oversite/internal/domain"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// PostgresStore implements Store on a Postgres database reached through the
// pgx stdlib driver. The schema is managed by the goose migrations embedded
// in internal/migrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres wraps an open database handle. The caller owns migrations and
// connection pooling configuration.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the underlying handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

const pgJobColumns = `id, job_type, parameters, status, created_at, started_at, completed_at, error_message, artifact_key, artifact_filename, artifact_content_type`

// Insert creates a queued row. Single statement; created_at is stamped by
// the database so queue ordering follows insertion order.
func (s *PostgresStore) Insert(ctx context.Context, job *domain.ReportJob) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO report_jobs (id, job_type, parameters, status)
		VALUES ($1, $2, $3, 'queued')
		RETURNING created_at`,
		job.ID, job.Type.String(), []byte(job.Params),
	)
	if err := row.Scan(&job.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateID
		}
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = domain.JobStatusQueued
	return nil
}

// FindByFingerprint scans jobs of the given type oldest-first and returns
// the first whose derived fingerprint matches. A read, not part of any
// atomic insert path: concurrent identical submissions can race past it.
func (s *PostgresStore) FindByFingerprint(ctx context.Context, t domain.JobType, fp string) (*domain.ReportJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pgJobColumns+`
		FROM report_jobs
		WHERE job_type = $1
		ORDER BY created_at, id`,
		t.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("find by fingerprint: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		job, err := scanPgJob(rows)
		if err != nil {
			return nil, err
		}
		jobFP, err := job.Fingerprint()
		if err != nil {
			// A row with an undecodable payload should not poison
			// dedup for everyone else.
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

// ClaimNext claims the oldest queued job in one atomic statement. SKIP
// LOCKED makes the inner select non-blocking: rows already locked by a
// concurrent claimer are passed over, so workers never contend on the same
// row and never block each other from claiming a different one.
func (s *PostgresStore) ClaimNext(ctx context.Context) (*domain.ReportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		WITH next AS (
			SELECT id
			FROM report_jobs
			WHERE status = 'queued'
			ORDER BY created_at, id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE report_jobs j
		SET status = 'processing', started_at = now()
		FROM next
		WHERE j.id = next.id
		RETURNING j.id, j.job_type, j.parameters, j.status, j.created_at, j.started_at, j.completed_at, j.error_message, j.artifact_key, j.artifact_filename, j.artifact_content_type`,
	)
	job, err := scanPgJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoJobAvailable
		}
		return nil, fmt.Errorf("claim next: %w", err)
	}
	return job, nil
}

// Complete writes the terminal outcome. One conditional update; rows
// affected distinguishes NotFound. No status guard: re-entry is
// last-write-wins, as documented on the Store interface.
func (s *PostgresStore) Complete(ctx context.Context, id uuid.UUID, outcome domain.JobStatus, errMsg string, artifact *domain.ArtifactRef) error {
	if err := validateCompletion(outcome, errMsg, artifact); err != nil {
		return err
	}

	var key, filename, contentType sql.NullString
	if artifact != nil {
		key = sql.NullString{String: artifact.Key, Valid: true}
		filename = sql.NullString{String: artifact.Filename, Valid: true}
		contentType = sql.NullString{String: artifact.ContentType, Valid: true}
	}
	var msg sql.NullString
	if errMsg != "" {
		msg = sql.NullString{String: errMsg, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET status = $2,
		    completed_at = now(),
		    error_message = $3,
		    artifact_key = $4,
		    artifact_filename = $5,
		    artifact_content_type = $6
		WHERE id = $1`,
		id, outcome.String(), msg, key, filename, contentType,
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
func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.ReportJob, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+pgJobColumns+`
		FROM report_jobs
		WHERE id = $1`,
		id,
	)
	job, err := scanPgJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// CountByStatus reports queue depth per status.
func (s *PostgresStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
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

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPgJob(sc scanner) (*domain.ReportJob, error) {
	var (
		job         domain.ReportJob
		jobType     string
		status      string
		params      []byte
		startedAt   sql.NullTime
		completedAt sql.NullTime
		errMsg      sql.NullString
		key         sql.NullString
		filename    sql.NullString
		contentType sql.NullString
	)

	err := sc.Scan(
		&job.ID, &jobType, &params, &status, &job.CreatedAt,
		&startedAt, &completedAt, &errMsg, &key, &filename, &contentType,
	)
	if err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Params = params
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
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
