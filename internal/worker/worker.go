// Package worker runs the background pool that claims queued report jobs
// and drives them to a terminal status.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/store"
)

// Pool manages concurrent report job processing.
type Pool struct {
	store    store.Store
	handlers map[domain.JobType]Handler
	config   Config
	logger   *slog.Logger

	// Synchronization
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a new Pool with the given configuration.
// The pool must be started with Start() and stopped with Stop().
func New(st store.Store, config Config, logger *slog.Logger) (*Pool, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Pool{
		store:    st,
		handlers: make(map[domain.JobType]Handler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the pool.
// The handler's Type() must be unique. Call this before Start().
func (p *Pool) Register(handler Handler) {
	jobType := handler.Type()
	if _, exists := p.handlers[jobType]; exists {
		p.logger.Warn("Overwriting existing handler", "job_type", jobType)
	}
	p.handlers[jobType] = handler
	p.logger.Debug("Registered job handler", "job_type", jobType)
}

// Start begins processing jobs with the configured number of concurrent workers.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.config.Concurrency; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i+1)
	}

	p.wg.Add(1)
	go p.publishQueueDepth(ctx)

	p.logger.Info("Worker pool started", "concurrency", p.config.Concurrency)
}

// Stop signals all workers to stop and waits for them to finish.
// It respects the configured ShutdownTimeout.
func (p *Pool) Stop() {
	p.logger.Info("Stopping worker pool...")
	close(p.stopCh)

	// Wait for workers with timeout
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Worker pool stopped gracefully")
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("Worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// runWorker is the main loop for a worker goroutine.
// It drains the queue on each tick until stopCh is closed.
func (p *Pool) runWorker(ctx context.Context, workerID int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", workerID)
	logger.Debug("Worker started")

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Poll immediately on startup, then on every tick
	p.drainQueue(ctx, logger)

	for {
		select {
		case <-p.stopCh:
			logger.Debug("Worker stopping")
			return
		case <-ctx.Done():
			logger.Debug("Worker context canceled")
			return
		case <-ticker.C:
			p.drainQueue(ctx, logger)
		}
	}
}

// drainQueue processes jobs until the queue is empty or the worker is
// asked to stop.
func (p *Pool) drainQueue(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		err := p.processNextJob(ctx, logger)
		if err != nil {
			if errors.Is(err, store.ErrNoJobAvailable) {
				// Queue is empty, this is normal
				return
			}
			logger.Error("Failed to process job", "error", err)
			return
		}
	}
}

// processNextJob claims and executes a single job.
// Returns store.ErrNoJobAvailable if the queue is empty.
func (p *Pool) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := p.store.ClaimNext(ctx)
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.Type)
	logger.Info("Processing job")

	start := time.Now()

	artifact, err := p.executeJob(ctx, job)
	if err != nil {
		logger.Error("Job failed", "error", err)
		metrics.JobFailed(string(job.Type))
		p.markJobFailed(ctx, job, err)
		return nil
	}

	logger.Info("Job completed", "artifact_key", artifact.Key, "duration", time.Since(start))
	metrics.JobCompleted(string(job.Type), time.Since(start))

	if err := p.store.Complete(ctx, job.ID, domain.JobStatusCompleted, "", artifact); err != nil {
		logger.Error("Failed to mark job as completed", "error", err)
		return err
	}

	return nil
}

// executeJob runs the appropriate handler for the job with a timeout context.
func (p *Pool) executeJob(ctx context.Context, job *domain.ReportJob) (*domain.ArtifactRef, error) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type: %s", job.Type)
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	artifact, err := handler.Handle(jobCtx, job)
	if err != nil {
		return nil, err
	}
	if artifact == nil {
		return nil, fmt.Errorf("handler for %s returned no artifact", job.Type)
	}

	return artifact, nil
}

// publishQueueDepth refreshes the queue depth gauge on the poll interval
// so the metrics endpoint reflects backlog without a request touching the
// database.
func (p *Pool) publishQueueDepth(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.refreshQueueDepth(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.refreshQueueDepth(ctx)
		}
	}
}

func (p *Pool) refreshQueueDepth(ctx context.Context) {
	counts, err := p.store.CountByStatus(ctx)
	if err != nil {
		p.logger.Warn("Failed to read queue depth", "error", err)
		return
	}

	// Statuses absent from the result still publish zero so the gauge
	// does not hold a stale depth once a status empties out.
	byStatus := map[string]int{
		string(domain.JobStatusQueued):     0,
		string(domain.JobStatusProcessing): 0,
		string(domain.JobStatusCompleted):  0,
		string(domain.JobStatusFailed):     0,
	}
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	metrics.SetQueueDepth(byStatus)
}

// markJobFailed records a terminal failure. Jobs are never requeued.
func (p *Pool) markJobFailed(ctx context.Context, job *domain.ReportJob, jobErr error) {
	if err := p.store.Complete(ctx, job.ID, domain.JobStatusFailed, jobErr.Error(), nil); err != nil {
		p.logger.Error("Failed to mark job as failed", "job_id", job.ID, "error", err)
	}
}
