// Package service contains the business logic layer between the HTTP
// handlers and the job store.
//
// This file implements report submission: request validation, the dedup
// resolver, and queueing.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/store"
)

// insertIDRetries bounds retries on a primary-key collision, which with
// random UUIDs should never happen more than once in a process lifetime.
const insertIDRetries = 3

// SubmitRequest carries the fields of a report submission as received from
// the front end. Which fields matter depends on Type.
type SubmitRequest struct {
	Type string `json:"type"`

	// Audit report fields.
	Address         string   `json:"address"`
	Notes           string   `json:"notes"`
	Recommendations string   `json:"recommendations"`
	Owner           string   `json:"owner"`
	Street          string   `json:"street"`
	City            string   `json:"city"`
	State           string   `json:"state"`
	Zip             string   `json:"zip"`
	ContactName     string   `json:"contact_name"`
	ContactEmail    string   `json:"contact_email"`
	DeficiencyOnly  bool     `json:"deficiency_only"`
	IncludeAll      bool     `json:"include_all"`
	AuditIDs        []string `json:"audit_ids"`

	// Location overview fields.
	LocationID  string `json:"location_id"`
	RangeStart  string `json:"range_start"`
	RangeEnd    string `json:"range_end"`
	RangePreset string `json:"range_preset"`
}

// SubmitResult is the outcome of a submission: either a freshly queued job
// or the equivalent job that already existed.
type SubmitResult struct {
	JobID         uuid.UUID
	Status        domain.JobStatus
	Deduplicated  bool
	ArtifactReady bool
}

// SubmissionService validates submissions, resolves duplicates, and queues
// new report jobs.
//
// Dedup is best-effort, not a correctness invariant: the fingerprint lookup
// and the insert are two separate statements, so two identical submissions
// racing through here can both insert. Sequential identical submissions
// always dedup. Closing the gap would take a uniqueness constraint over
// (fingerprint, non-terminal status); the schema deliberately omits it.
type SubmissionService struct {
	store  store.Store
	logger *slog.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(st store.Store, logger *slog.Logger) *SubmissionService {
	return &SubmissionService{
		store:  st,
		logger: logger,
	}
}

// Submit validates the request, reuses an equivalent existing job if one is
// found, and otherwise inserts a new queued job.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	const op = "report.submit"

	jobType, params, err := s.buildParams(op, req)
	if err != nil {
		return nil, err
	}

	fp, err := domain.Fingerprint(jobType, params)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to fingerprint submission")
	}

	// Dedup resolver: read-then-maybe-write, not atomic (see type docs).
	existing, err := s.store.FindByFingerprint(ctx, jobType, fp)
	if err == nil {
		s.logger.Info("submission deduplicated",
			"job_id", existing.ID,
			"job_type", jobType,
			"status", existing.Status,
		)
		metrics.SubmissionsTotal.WithLabelValues(jobType.String(), "deduplicated").Inc()
		return &SubmitResult{
			JobID:         existing.ID,
			Status:        existing.Status,
			Deduplicated:  true,
			ArtifactReady: existing.DownloadReady(),
		}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, domain.Internal(err, op, "failed to check for existing job")
	}

	job := &domain.ReportJob{
		Type:   jobType,
		Params: params,
	}
	for attempt := 0; ; attempt++ {
		job.ID = uuid.New()
		err = s.store.Insert(ctx, job)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrDuplicateID) && attempt < insertIDRetries-1 {
			s.logger.Warn("job id collision, retrying with fresh id", "job_id", job.ID)
			continue
		}
		return nil, domain.Internal(err, op, "failed to queue report job")
	}

	s.logger.Info("report job queued", "job_id", job.ID, "job_type", jobType)
	metrics.SubmissionsTotal.WithLabelValues(jobType.String(), "queued").Inc()

	return &SubmitResult{
		JobID:  job.ID,
		Status: domain.JobStatusQueued,
	}, nil
}

// buildParams validates the request and produces the canonical parameter
// payload for the job type. Validation failures are rejected before any
// row is written.
func (s *SubmissionService) buildParams(op string, req SubmitRequest) (domain.JobType, json.RawMessage, error) {
	jobType := domain.JobType(strings.TrimSpace(req.Type))
	if !jobType.IsValid() {
		return "", nil, domain.NewValidationError(op, "type",
			fmt.Sprintf("must be %q or %q", domain.JobTypeAuditReport, domain.JobTypeLocationOverview))
	}

	switch jobType {
	case domain.JobTypeAuditReport:
		params, err := s.buildAuditParams(op, req)
		if err != nil {
			return "", nil, err
		}
		return jobType, params, nil
	default:
		params, err := s.buildOverviewParams(op, req)
		if err != nil {
			return "", nil, err
		}
		return jobType, params, nil
	}
}

func (s *SubmissionService) buildAuditParams(op string, req SubmitRequest) (json.RawMessage, error) {
	var verr *domain.ValidationError

	if strings.TrimSpace(req.Address) == "" {
		verr = domain.AddFieldError(verr, "address", "address is required for audit reports")
	}
	if email := strings.TrimSpace(req.ContactEmail); email != "" && !strings.Contains(email, "@") {
		verr = domain.AddFieldError(verr, "contact_email", "must be a valid email address")
	}

	auditIDs := make([]uuid.UUID, 0, len(req.AuditIDs))
	for _, raw := range req.AuditIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			verr = domain.AddFieldError(verr, "audit_ids", fmt.Sprintf("%q is not a valid audit id", raw))
			continue
		}
		auditIDs = append(auditIDs, id)
	}

	if verr != nil {
		verr.Op = op
		return nil, verr
	}

	params := domain.AuditReportParams{
		Address:         req.Address,
		Notes:           req.Notes,
		Recommendations: req.Recommendations,
		Cover: domain.CoverPage{
			Owner:        req.Owner,
			Street:       req.Street,
			City:         req.City,
			State:        req.State,
			Zip:          req.Zip,
			ContactName:  req.ContactName,
			ContactEmail: req.ContactEmail,
		},
		DeficiencyOnly: req.DeficiencyOnly,
		IncludeAll:     req.IncludeAll,
		AuditIDs:       auditIDs,
	}
	params.Canonicalize()

	payload, err := json.Marshal(&params)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode audit parameters")
	}
	return payload, nil
}

func (s *SubmissionService) buildOverviewParams(op string, req SubmitRequest) (json.RawMessage, error) {
	var verr *domain.ValidationError

	locationID, err := uuid.Parse(strings.TrimSpace(req.LocationID))
	if err != nil {
		verr = domain.AddFieldError(verr, "location_id", "a valid location id is required for overview reports")
	}

	preset := strings.ToLower(strings.TrimSpace(req.RangePreset))
	start := strings.TrimSpace(req.RangeStart)
	end := strings.TrimSpace(req.RangeEnd)

	switch {
	case preset != "":
		if !domain.ValidRangePreset(preset) {
			verr = domain.AddFieldError(verr, "range_preset", "unknown range preset")
		}
	case start != "" || end != "":
		startDate, serr := time.Parse(domain.DateLayout, start)
		if serr != nil {
			verr = domain.AddFieldError(verr, "range_start", "must be a YYYY-MM-DD date")
		}
		endDate, eerr := time.Parse(domain.DateLayout, end)
		if eerr != nil {
			verr = domain.AddFieldError(verr, "range_end", "must be a YYYY-MM-DD date")
		}
		if serr == nil && eerr == nil && endDate.Before(startDate) {
			verr = domain.AddFieldError(verr, "range_end", "must not be before range_start")
		}
	default:
		verr = domain.AddFieldError(verr, "range_preset", "either a range preset or an explicit date range is required")
	}

	if verr != nil {
		verr.Op = op
		return nil, verr
	}

	params := domain.OverviewReportParams{
		LocationID:  locationID,
		RangeStart:  start,
		RangeEnd:    end,
		RangePreset: preset,
	}
	params.Canonicalize()

	payload, err := json.Marshal(&params)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to encode overview parameters")
	}
	return payload, nil
}
