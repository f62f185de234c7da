package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/service"
	"github.com/oversitehq/oversite/internal/storage"
	"github.com/oversitehq/oversite/internal/store"
)

type testEnv struct {
	store   store.Store
	storage storage.Storage
	mux     *http.ServeMux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.OpenSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	artifacts, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, logger)
	require.NoError(t, err)

	submissions := service.NewSubmissionService(st, logger)
	status := service.NewStatusService(st, artifacts, logger)

	mux := http.NewServeMux()
	NewJobHandler(submissions, status, logger).Register(mux)
	mux.HandleFunc("GET /health", Health)

	return &testEnv{store: st, storage: artifacts, mux: mux}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) submitAudit(t *testing.T, address string) uuid.UUID {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/reports", map[string]any{
		"type":    "audit_report",
		"address": address,
	})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.JobID
}

func TestJobHandler_Submit(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/reports", map[string]any{
		"type":          "audit_report",
		"address":       "123 Main St, Springfield",
		"notes":         "roof inspected",
		"contact_email": "jo@example.com",
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp struct {
		JobID         uuid.UUID `json:"job_id"`
		Status        string    `json:"status"`
		Deduplicated  bool      `json:"deduplicated"`
		DownloadReady bool      `json:"download_ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.JobID)
	assert.Equal(t, "queued", resp.Status)
	assert.False(t, resp.Deduplicated)
	assert.False(t, resp.DownloadReady)
}

func TestJobHandler_Submit_Deduplicated(t *testing.T) {
	env := newTestEnv(t)

	first := env.submitAudit(t, "123 Main St")

	rec := env.do(t, http.MethodPost, "/api/reports", map[string]any{
		"type":    "audit_report",
		"address": "123 Main St",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID        uuid.UUID `json:"job_id"`
		Deduplicated bool      `json:"deduplicated"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Deduplicated)
	assert.Equal(t, first, resp.JobID)
}

func TestJobHandler_Submit_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/reports", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.EINVALID, resp.Error.Code)
}

func TestJobHandler_Submit_ValidationFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/reports", map[string]any{
		"type":          "audit_report",
		"contact_email": "not-an-email",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.EINVALID, resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "address")
	assert.Contains(t, resp.Error.Fields, "contact_email")
}

func TestJobHandler_GetStatus(t *testing.T) {
	env := newTestEnv(t)
	id := env.submitAudit(t, "123 Main St")

	rec := env.do(t, http.MethodGet, "/api/reports/"+id.String(), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		JobID         uuid.UUID `json:"job_id"`
		Status        string    `json:"status"`
		Address       string    `json:"address"`
		DownloadReady bool      `json:"download_ready"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.JobID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, "123 Main St", resp.Address)
	assert.False(t, resp.DownloadReady)
}

func TestJobHandler_GetStatus_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/reports/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ENOTFOUND, resp.Error.Code)
}

func TestJobHandler_GetStatus_BadID(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJobHandler_Download_NotReady(t *testing.T) {
	env := newTestEnv(t)
	id := env.submitAudit(t, "123 Main St")

	rec := env.do(t, http.MethodGet, "/api/reports/"+id.String()+"/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, domain.ENOTREADY, resp.Error.Code)
}

func TestJobHandler_Download_Completed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.submitAudit(t, "123 Main St")

	// Drive the job to completed with a stored document.
	_, err := env.store.ClaimNext(ctx)
	require.NoError(t, err)

	content := []byte("%PDF-1.4 rendered report")
	key := storage.ReportKey(id, "pdf")
	require.NoError(t, env.storage.Put(ctx, key, bytes.NewReader(content), storage.PutOptions{
		ContentType: "application/pdf",
	}))
	require.NoError(t, env.store.Complete(ctx, id, domain.JobStatusCompleted, "", &domain.ArtifactRef{
		Key:         key,
		Filename:    "inspection-report.pdf",
		ContentType: "application/pdf",
	}))

	rec := env.do(t, http.MethodGet, "/api/reports/"+id.String()+"/download", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `attachment`)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inspection-report.pdf")
	assert.Equal(t, content, rec.Body.Bytes())
}

func TestJobHandler_Download_FailedJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.submitAudit(t, "123 Main St")

	_, err := env.store.ClaimNext(ctx)
	require.NoError(t, err)
	require.NoError(t, env.store.Complete(ctx, id, domain.JobStatusFailed, "boom", nil))

	rec := env.do(t, http.MethodGet, "/api/reports/"+id.String()+"/download", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
