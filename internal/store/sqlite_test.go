package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversitehq/oversite/internal/domain"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newAuditJob(t *testing.T, address string) *domain.ReportJob {
	t.Helper()
	params := domain.AuditReportParams{Address: address}
	params.Canonicalize()
	payload, err := json.Marshal(&params)
	require.NoError(t, err)
	return &domain.ReportJob{
		ID:     uuid.New(),
		Type:   domain.JobTypeAuditReport,
		Params: payload,
	}
}

func TestSQLiteStore_InsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))

	assert.Equal(t, domain.JobStatusQueued, job.Status)
	assert.False(t, job.CreatedAt.IsZero())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobTypeAuditReport, got.Type)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.JSONEq(t, string(job.Params), string(got.Params))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Artifact)
	assert.Empty(t, got.Error)
}

func TestSQLiteStore_Insert_DuplicateID(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))

	dup := newAuditJob(t, "456 Oak Ave")
	dup.ID = job.ID
	err := s.Insert(ctx, dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestSQLiteStore_GetJob_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetJob(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_FindByFingerprint(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, first))
	second := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, second))
	other := newAuditJob(t, "456 Oak Ave")
	require.NoError(t, s.Insert(ctx, other))

	fp, err := first.Fingerprint()
	require.NoError(t, err)

	// Two equivalent rows exist; the oldest wins.
	got, err := s.FindByFingerprint(ctx, domain.JobTypeAuditReport, fp)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	// The match is per job type.
	_, err = s.FindByFingerprint(ctx, domain.JobTypeLocationOverview, fp)
	assert.ErrorIs(t, err, ErrNotFound)

	// No match for an unseen fingerprint.
	_, err = s.FindByFingerprint(ctx, domain.JobTypeAuditReport, "deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_FindByFingerprint_MatchesTerminalJobs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, claimed.ID, domain.JobStatusFailed, "upstream down", nil))

	// Dedup considers every status, including failed.
	fp, err := job.Fingerprint()
	require.NoError(t, err)
	got, err := s.FindByFingerprint(ctx, domain.JobTypeAuditReport, fp)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
}

func TestSQLiteStore_ClaimNext_FIFO(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := newAuditJob(t, "1 First St")
	require.NoError(t, s.Insert(ctx, first))
	second := newAuditJob(t, "2 Second St")
	require.NoError(t, s.Insert(ctx, second))

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, claimed.ID)
	assert.Equal(t, domain.JobStatusProcessing, claimed.Status)
	require.NotNil(t, claimed.StartedAt)

	claimed, err = s.ClaimNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, claimed.ID)

	_, err = s.ClaimNext(ctx)
	assert.ErrorIs(t, err, ErrNoJobAvailable)
}

func TestSQLiteStore_ClaimNext_Concurrent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	const jobCount = 10
	for i := 0; i < jobCount; i++ {
		require.NoError(t, s.Insert(ctx, newAuditJob(t, "street "+uuid.NewString())))
	}

	// More claimers than jobs; every job must be claimed exactly once.
	const claimers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[uuid.UUID]int)
		empty   int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := s.ClaimNext(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrNoJobAvailable)
				empty++
				return
			}
			claimed[job.ID]++
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, jobCount)
	assert.Equal(t, claimers-jobCount, empty)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed more than once", id)
	}
}

func TestSQLiteStore_Complete_Success(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))
	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)

	artifact := &domain.ArtifactRef{
		Key:         "reports/" + job.ID.String() + "/doc.pdf",
		Filename:    "inspection-report.pdf",
		ContentType: "application/pdf",
	}
	require.NoError(t, s.Complete(ctx, claimed.ID, domain.JobStatusCompleted, "", artifact))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Artifact)
	assert.Equal(t, artifact.Key, got.Artifact.Key)
	assert.Equal(t, artifact.Filename, got.Artifact.Filename)
	assert.Equal(t, artifact.ContentType, got.Artifact.ContentType)
	assert.Empty(t, got.Error)
	assert.True(t, got.DownloadReady())
}

func TestSQLiteStore_Complete_Failure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))
	_, err := s.ClaimNext(ctx)
	require.NoError(t, err)

	require.NoError(t, s.Complete(ctx, job.ID, domain.JobStatusFailed, "narrative provider unavailable", nil))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "narrative provider unavailable", got.Error)
	require.NotNil(t, got.CompletedAt)
	assert.Nil(t, got.Artifact)
	assert.False(t, got.DownloadReady())
}

func TestSQLiteStore_Complete_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))

	artifact := &domain.ArtifactRef{Key: "k", Filename: "f.pdf", ContentType: "application/pdf"}

	tests := []struct {
		name     string
		outcome  domain.JobStatus
		errMsg   string
		artifact *domain.ArtifactRef
	}{
		{name: "completed without artifact", outcome: domain.JobStatusCompleted},
		{name: "completed with error message", outcome: domain.JobStatusCompleted, errMsg: "boom", artifact: artifact},
		{name: "failed with artifact", outcome: domain.JobStatusFailed, artifact: artifact},
		{name: "non-terminal outcome", outcome: domain.JobStatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Complete(ctx, job.ID, tt.outcome, tt.errMsg, tt.artifact)
			assert.Error(t, err)
		})
	}

	// The row is untouched by rejected completions.
	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
}

func TestSQLiteStore_Complete_NotFound(t *testing.T) {
	s := openTestStore(t)

	err := s.Complete(context.Background(), uuid.New(), domain.JobStatusFailed, "nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_Complete_LastWriteWins(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))
	_, err := s.ClaimNext(ctx)
	require.NoError(t, err)

	artifact := &domain.ArtifactRef{Key: "k", Filename: "f.pdf", ContentType: "application/pdf"}
	require.NoError(t, s.Complete(ctx, job.ID, domain.JobStatusCompleted, "", artifact))

	// Re-completion is not guarded; the second write overwrites the first.
	require.NoError(t, s.Complete(ctx, job.ID, domain.JobStatusFailed, "late failure", nil))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	assert.Equal(t, "late failure", got.Error)
	assert.Nil(t, got.Artifact)
}

func TestSQLiteStore_ProcessingJobsAreNeverRequeued(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	job := newAuditJob(t, "123 Main St")
	require.NoError(t, s.Insert(ctx, job))

	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.Equal(t, job.ID, claimed.ID)

	// A claimed job that never completes stays processing; there is no
	// lease expiry, so nothing ever claims it again.
	_, err = s.ClaimNext(ctx)
	assert.ErrorIs(t, err, ErrNoJobAvailable)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
}

func TestSQLiteStore_CountByStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Insert(ctx, newAuditJob(t, "street "+uuid.NewString())))
	}
	claimed, err := s.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, claimed.ID, domain.JobStatusFailed, "boom", nil))

	counts, err := s.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.JobStatusQueued])
	assert.Equal(t, 1, counts[domain.JobStatusFailed])
	assert.Equal(t, 0, counts[domain.JobStatusProcessing])
}

func TestSQLiteStore_TimestampOrdering(t *testing.T) {
	// The claim orders by the TEXT created_at column; the fixed-width
	// layout keeps lexical order identical to chronological order.
	earlier := time.Date(2026, time.March, 9, 9, 59, 59, 999999999, time.UTC)
	later := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	assert.Less(t, earlier.Format(sqliteTimeLayout), later.Format(sqliteTimeLayout))
}
