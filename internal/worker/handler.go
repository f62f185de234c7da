package worker

import (
	"context"

	"github.com/oversitehq/oversite/internal/domain"
)

// Handler defines the interface that all job handlers must implement.
// Each handler generates one type of report.
type Handler interface {
	// Type returns the job type this handler processes.
	Type() domain.JobType

	// Handle generates the report for a claimed job and returns a
	// reference to the stored artifact. Returning an error marks the
	// job failed. Jobs are never retried.
	Handle(ctx context.Context, job *domain.ReportJob) (*domain.ArtifactRef, error)
}
