// This file implements the status reader: the read-only job snapshot the
// front end polls, and the artifact download gate.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/storage"
	"github.com/oversitehq/oversite/internal/store"
)

// StatusSnapshot is the poll response for a single job.
type StatusSnapshot struct {
	JobID         uuid.UUID        `json:"job_id"`
	Status        domain.JobStatus `json:"status"`
	Address       string           `json:"address,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	Error         string           `json:"error,omitempty"`
	DownloadReady bool             `json:"download_ready"`
}

// Download is a fully materialized artifact ready to serve.
type Download struct {
	Filename    string
	ContentType string
	Data        []byte
}

// StatusService reads job state for client polling and gates artifact
// downloads. It never mutates a job.
type StatusService struct {
	store   store.Store
	storage storage.Storage
	logger  *slog.Logger
}

// NewStatusService creates a new StatusService.
func NewStatusService(st store.Store, artifacts storage.Storage, logger *slog.Logger) *StatusService {
	return &StatusService{
		store:   st,
		storage: artifacts,
		logger:  logger,
	}
}

// GetStatus returns the poll snapshot for a job.
func (s *StatusService) GetStatus(ctx context.Context, id uuid.UUID) (*StatusSnapshot, error) {
	const op = "report.status"

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "report job", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load job")
	}

	return &StatusSnapshot{
		JobID:         job.ID,
		Status:        job.Status,
		Address:       job.Address(),
		CreatedAt:     job.CreatedAt,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		Error:         job.Error,
		DownloadReady: job.DownloadReady(),
	}, nil
}

// DownloadArtifact returns the generated document for a completed job.
// Before completion (including failure) it fails with a not-ready error; a
// completed job with no recorded or retrievable artifact is an invariant
// breach and surfaces as an internal error rather than a panic.
func (s *StatusService) DownloadArtifact(ctx context.Context, id uuid.UUID) (*Download, error) {
	const op = "report.download"

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domain.NotFound(op, "report job", id.String())
		}
		return nil, domain.Internal(err, op, "failed to load job")
	}

	if job.Status != domain.JobStatusCompleted {
		return nil, domain.NotReady(op, fmt.Sprintf("report is %s, not ready for download", job.Status))
	}
	if job.Artifact == nil {
		s.logger.Error("completed job has no artifact recorded", "job_id", job.ID)
		return nil, domain.Internal(nil, op, "report completed but artifact is missing")
	}

	rc, _, err := s.storage.Get(ctx, job.Artifact.Key)
	if err != nil {
		if storage.IsNotFound(err) {
			s.logger.Error("artifact missing from storage", "job_id", job.ID, "key", job.Artifact.Key)
			return nil, domain.Internal(err, op, "report completed but artifact is missing")
		}
		return nil, domain.Internal(err, op, "failed to read artifact")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to read artifact")
	}

	return &Download{
		Filename:    job.Artifact.Filename,
		ContentType: job.Artifact.ContentType,
		Data:        data,
	}, nil
}
