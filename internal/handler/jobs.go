// Package handler implements the JSON API surface.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/service"
)

// maxSubmitBodyBytes bounds a submission request body.
const maxSubmitBodyBytes = 1 << 20 // 1 MB

// JobHandler serves the report job endpoints.
type JobHandler struct {
	submissions *service.SubmissionService
	status      *service.StatusService
	logger      *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(submissions *service.SubmissionService, status *service.StatusService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		submissions: submissions,
		status:      status,
		logger:      logger,
	}
}

// Register mounts the job routes on the mux.
func (h *JobHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/reports", h.Submit)
	mux.HandleFunc("GET /api/reports/{id}", h.GetStatus)
	mux.HandleFunc("GET /api/reports/{id}/download", h.Download)
}

// submitResponse is the body returned by Submit.
type submitResponse struct {
	JobID         uuid.UUID        `json:"job_id"`
	Status        domain.JobStatus `json:"status"`
	Deduplicated  bool             `json:"deduplicated"`
	DownloadReady bool             `json:"download_ready"`
}

// Submit handles POST /api/reports.
// A fresh submission queues a job and answers 202; a submission equivalent
// to an existing job answers 200 with that job.
func (h *JobHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest

	body := http.MaxBytesReader(w, r.Body, maxSubmitBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("report.submit", "request body must be valid JSON"))
		return
	}

	result, err := h.submissions.Submit(r.Context(), req)
	if err != nil {
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			ValidationErrorResponse(w, r, h.logger, err)
			return
		}
		ErrorResponse(w, r, h.logger, err)
		return
	}

	status := http.StatusAccepted
	if result.Deduplicated {
		status = http.StatusOK
	}

	writeJSON(w, status, submitResponse{
		JobID:         result.JobID,
		Status:        result.Status,
		Deduplicated:  result.Deduplicated,
		DownloadReady: result.ArtifactReady,
	})
}

// GetStatus handles GET /api/reports/{id}.
func (h *JobHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	snapshot, err := h.status.GetStatus(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

// Download handles GET /api/reports/{id}/download.
func (h *JobHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}

	download, err := h.status.DownloadArtifact(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", download.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", download.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(download.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(download.Data)
}

// jobID parses the {id} path value, answering 400 on garbage.
func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid("report.lookup", "job id must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Health handles GET /health.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
