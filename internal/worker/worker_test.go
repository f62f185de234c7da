package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/store"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "concurrency too low",
			config: Config{
				Concurrency:     0,
				PollInterval:    5 * time.Second,
				JobTimeout:      5 * time.Minute,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "concurrency too high",
			config: Config{
				Concurrency:     101,
				PollInterval:    5 * time.Second,
				JobTimeout:      5 * time.Minute,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "poll interval too short",
			config: Config{
				Concurrency:     2,
				PollInterval:    500 * time.Millisecond,
				JobTimeout:      5 * time.Minute,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "job timeout too short",
			config: Config{
				Concurrency:     2,
				PollInterval:    5 * time.Second,
				JobTimeout:      100 * time.Millisecond,
				ShutdownTimeout: 30 * time.Second,
			},
			wantErr: true,
		},
		{
			name: "shutdown timeout too short",
			config: Config{
				Concurrency:     2,
				PollInterval:    5 * time.Second,
				JobTimeout:      5 * time.Minute,
				ShutdownTimeout: 0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// stubHandler records the jobs it handles and can be told to fail for
// specific job ids.
type stubHandler struct {
	jobType domain.JobType

	mu      sync.Mutex
	handled []uuid.UUID
	failFor map[uuid.UUID]error
}

func newStubHandler(jobType domain.JobType) *stubHandler {
	return &stubHandler{
		jobType: jobType,
		failFor: make(map[uuid.UUID]error),
	}
}

func (h *stubHandler) Type() domain.JobType {
	return h.jobType
}

func (h *stubHandler) Handle(ctx context.Context, job *domain.ReportJob) (*domain.ArtifactRef, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, job.ID)
	if err := h.failFor[job.ID]; err != nil {
		return nil, err
	}
	return &domain.ArtifactRef{
		Key:         "reports/" + job.ID.String() + "/doc.pdf",
		Filename:    "report.pdf",
		ContentType: "application/pdf",
	}, nil
}

func (h *stubHandler) handledCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func testPoolStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func queueAuditJob(t *testing.T, s store.Store) *domain.ReportJob {
	t.Helper()
	params := domain.AuditReportParams{Address: "street " + uuid.NewString()}
	params.Canonicalize()
	payload, err := json.Marshal(&params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	job := &domain.ReportJob{
		ID:     uuid.New(),
		Type:   domain.JobTypeAuditReport,
		Params: payload,
	}
	if err := s.Insert(context.Background(), job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return job
}

// waitForTerminal polls until the job reaches a terminal status or the
// deadline passes.
func waitForTerminal(t *testing.T, s store.Store, id uuid.UUID) *domain.ReportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := s.GetJob(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", id)
	return nil
}

func testPool(t *testing.T, s store.Store, handlers ...Handler) *Pool {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	config := DefaultConfig()
	config.PollInterval = 1 * time.Second
	config.ShutdownTimeout = 5 * time.Second

	pool, err := New(s, config, logger)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	for _, h := range handlers {
		pool.Register(h)
	}
	return pool
}

func TestPool_ProcessesQueuedJobs(t *testing.T) {
	s := testPoolStore(t)
	handler := newStubHandler(domain.JobTypeAuditReport)

	jobs := make([]*domain.ReportJob, 5)
	for i := range jobs {
		jobs[i] = queueAuditJob(t, s)
	}

	pool := testPool(t, s, handler)
	pool.Start(context.Background())
	defer pool.Stop()

	for _, queued := range jobs {
		job := waitForTerminal(t, s, queued.ID)
		if job.Status != domain.JobStatusCompleted {
			t.Errorf("job %s: status = %s, want completed (error: %s)", job.ID, job.Status, job.Error)
		}
		if job.Artifact == nil {
			t.Errorf("job %s: no artifact recorded", job.ID)
		}
	}

	if got := handler.handledCount(); got != len(jobs) {
		t.Errorf("handler invoked %d times, want %d", got, len(jobs))
	}
}

func TestPool_FailedJobDoesNotStopOthers(t *testing.T) {
	s := testPoolStore(t)
	handler := newStubHandler(domain.JobTypeAuditReport)

	bad := queueAuditJob(t, s)
	handler.failFor[bad.ID] = errors.New("upstream data source unavailable")
	good := queueAuditJob(t, s)

	pool := testPool(t, s, handler)
	pool.Start(context.Background())
	defer pool.Stop()

	failed := waitForTerminal(t, s, bad.ID)
	if failed.Status != domain.JobStatusFailed {
		t.Errorf("bad job: status = %s, want failed", failed.Status)
	}
	if failed.Error != "upstream data source unavailable" {
		t.Errorf("bad job: error = %q, want handler error", failed.Error)
	}
	if failed.Artifact != nil {
		t.Error("bad job: failed job must not carry an artifact")
	}

	completed := waitForTerminal(t, s, good.ID)
	if completed.Status != domain.JobStatusCompleted {
		t.Errorf("good job: status = %s, want completed (error: %s)", completed.Status, completed.Error)
	}
}

func TestPool_UnregisteredJobTypeFails(t *testing.T) {
	s := testPoolStore(t)

	// Only the overview handler is registered; the queued audit job has no
	// handler and is failed rather than retried or left queued.
	handler := newStubHandler(domain.JobTypeLocationOverview)
	job := queueAuditJob(t, s)

	pool := testPool(t, s, handler)
	pool.Start(context.Background())
	defer pool.Stop()

	failed := waitForTerminal(t, s, job.ID)
	if failed.Status != domain.JobStatusFailed {
		t.Errorf("status = %s, want failed", failed.Status)
	}
	if failed.Error == "" {
		t.Error("expected a recorded failure reason")
	}
}

func TestPool_PublishesQueueDepth(t *testing.T) {
	s := testPoolStore(t)
	pool := testPool(t, s, newStubHandler(domain.JobTypeAuditReport))
	ctx := context.Background()

	queueAuditJob(t, s)
	queueAuditJob(t, s)
	claimed, err := s.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("claim job: %v", err)
	}

	pool.refreshQueueDepth(ctx)

	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("queued")); got != 1 {
		t.Errorf("queued depth = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("processing")); got != 1 {
		t.Errorf("processing depth = %v, want 1", got)
	}

	// Once the claimed job terminates, the next refresh must publish zero
	// for processing rather than holding the stale depth.
	if err := s.Complete(ctx, claimed.ID, domain.JobStatusFailed, "upstream data source unavailable", nil); err != nil {
		t.Fatalf("complete job: %v", err)
	}
	pool.refreshQueueDepth(ctx)

	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("processing")); got != 0 {
		t.Errorf("processing depth after completion = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed depth = %v, want 1", got)
	}
}

func TestPool_StopIsGraceful(t *testing.T) {
	s := testPoolStore(t)
	handler := newStubHandler(domain.JobTypeAuditReport)
	job := queueAuditJob(t, s)

	pool := testPool(t, s, handler)
	pool.Start(context.Background())

	waitForTerminal(t, s, job.ID)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("pool did not stop in time")
	}
}
