// Package store is the job queue's persistence layer and the only code
// permitted to issue mutating statements against the report_jobs table.
//
// Every mutation is a single atomic statement: insert, lock-skipping claim,
// or conditional terminal update. No caller ever holds a lock across slow
// work, and no component outside this package interleaves a read and a
// write on the same row. Two backends implement the Store interface:
// Postgres (production, FOR UPDATE SKIP LOCKED) and SQLite (development and
// tests, single guarded UPDATE under the writer lock).
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/oversitehq/oversite/internal/domain"
)

var (
	// ErrNotFound is returned when no job matches the lookup.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateID is returned when Insert collides on the primary key.
	// Practically unreachable with random UUIDs; callers retry with a
	// fresh id rather than treating it as fatal.
	ErrDuplicateID = errors.New("job id already exists")

	// ErrNoJobAvailable is returned by ClaimNext when the queue is empty
	// or every queued row is held by a concurrent claimer. This is a
	// normal outcome, not a failure.
	ErrNoJobAvailable = errors.New("no queued job available")
)

// Store is the durable job table behind the report queue.
type Store interface {
	// Insert creates a new queued job row. Fails with ErrDuplicateID if
	// the generated id already exists.
	Insert(ctx context.Context, job *domain.ReportJob) error

	// FindByFingerprint returns the oldest job of the given type whose
	// derived fingerprint equals fp, regardless of status. Fails with
	// ErrNotFound when no equivalent job exists. The fingerprint is
	// computed per row in Go; it is never stored as a column.
	FindByFingerprint(ctx context.Context, t domain.JobType, fp string) (*domain.ReportJob, error)

	// ClaimNext atomically takes exclusive ownership of the oldest queued
	// job: it transitions the row to processing, stamps started_at, and
	// returns the full job. Concurrent calls never return the same job.
	// Fails with ErrNoJobAvailable when there is nothing to claim.
	ClaimNext(ctx context.Context) (*domain.ReportJob, error)

	// Complete records the terminal outcome of a job. The artifact is
	// stored iff outcome is completed, the error message iff outcome is
	// failed. Fails with ErrNotFound for unknown ids. Calling it twice
	// for the same id is not guarded; the last write wins.
	Complete(ctx context.Context, id uuid.UUID, outcome domain.JobStatus, errMsg string, artifact *domain.ArtifactRef) error

	// GetJob returns a read-only snapshot of a job.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.ReportJob, error)

	// CountByStatus returns the number of jobs in each status, for
	// queue-depth reporting.
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)

	// Close releases the underlying database handle.
	Close() error
}

// validateCompletion enforces the artifact/error exclusivity rule shared by
// both backends before any SQL runs.
func validateCompletion(outcome domain.JobStatus, errMsg string, artifact *domain.ArtifactRef) error {
	switch outcome {
	case domain.JobStatusCompleted:
		if artifact == nil {
			return fmt.Errorf("complete: completed outcome requires an artifact")
		}
		if errMsg != "" {
			return fmt.Errorf("complete: completed outcome cannot carry an error")
		}
	case domain.JobStatusFailed:
		if artifact != nil {
			return fmt.Errorf("complete: failed outcome cannot carry an artifact")
		}
	default:
		return fmt.Errorf("complete: outcome must be terminal, got %q", outcome)
	}
	return nil
}
