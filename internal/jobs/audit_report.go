package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oversitehq/oversite/internal/address"
	"github.com/oversitehq/oversite/internal/ai"
	"github.com/oversitehq/oversite/internal/ai/anthropic"
	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/email"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/report"
	"github.com/oversitehq/oversite/internal/storage"
)

// AuditReportHandler generates audit report documents.
// It validates the property address, fetches the audit findings, writes a
// narrative, renders the document, and uploads it to storage.
type AuditReportHandler struct {
	source    AuditSource
	validator address.Validator
	narrative ai.NarrativeGenerator
	generator report.Generator
	storage   storage.Storage
	notifier  email.Notifier
	logger    *slog.Logger
}

// NewAuditReportHandler creates a handler for audit_report jobs.
func NewAuditReportHandler(
	source AuditSource,
	validator address.Validator,
	narrative ai.NarrativeGenerator,
	store storage.Storage,
	notifier email.Notifier,
	logger *slog.Logger,
) *AuditReportHandler {
	return &AuditReportHandler{
		source:    source,
		validator: validator,
		narrative: narrative,
		generator: report.NewPDFGenerator(),
		storage:   store,
		notifier:  notifier,
		logger:    logger,
	}
}

// Type returns the job type this handler processes.
func (h *AuditReportHandler) Type() domain.JobType {
	return domain.JobTypeAuditReport
}

// Handle generates the report for a claimed audit_report job.
func (h *AuditReportHandler) Handle(ctx context.Context, job *domain.ReportJob) (*domain.ArtifactRef, error) {
	params, err := job.AuditParams()
	if err != nil {
		return nil, err
	}

	h.logger.Info("Generating audit report",
		"job_id", job.ID,
		"address", params.Address,
		"audit_count", len(params.AuditIDs),
	)

	// 1. Validate and normalize the property address
	normalized, err := h.validator.Validate(ctx, params.Address)
	if err != nil {
		return nil, fmt.Errorf("validate address: %w", err)
	}

	// 2. Fetch findings for the referenced audits
	findings, err := h.source.FetchFindings(ctx, params.AuditIDs)
	if err != nil {
		return nil, err
	}
	findings = filterFindings(findings, params)

	// 3. Generate the narrative
	narrative, err := h.generateNarrative(ctx, normalized.String(), params, findings)
	if err != nil {
		return nil, err
	}

	// 4. Render the document
	data := &report.ReportData{
		Kind:        report.ReportKindAudit,
		Title:       "Property Inspection Report - " + normalized.String(),
		GeneratedAt: time.Now(),
		Narrative:   narrative,
		Address:     normalized.String(),
		Cover: &report.CoverInfo{
			Owner:        params.Cover.Owner,
			Street:       params.Cover.Street,
			City:         params.Cover.City,
			State:        params.Cover.State,
			Zip:          params.Cover.Zip,
			ContactName:  params.Cover.ContactName,
			ContactEmail: params.Cover.ContactEmail,
		},
		Notes:           params.Notes,
		Recommendations: params.Recommendations,
		Findings:        findings,
	}

	var buf bytes.Buffer
	size, err := h.generator.Generate(ctx, data, &buf)
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}

	// 5. Upload to storage
	key := storage.ReportKey(job.ID, h.generator.FileExtension())
	err = h.storage.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: h.generator.ContentType(),
		Overwrite:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}

	metrics.ReportsGenerated.WithLabelValues(string(job.Type)).Inc()
	h.logger.Info("Audit report generated",
		"job_id", job.ID,
		"storage_key", key,
		"size_bytes", size,
		"finding_count", len(findings),
	)

	// 6. Notify the cover contact (never fails the job)
	if params.Cover.ContactEmail != "" {
		downloadURL := fmt.Sprintf("/api/reports/%s/download", job.ID)
		if err := h.notifier.SendReportReady(ctx, params.Cover.ContactEmail, params.Cover.ContactName, downloadURL); err != nil {
			h.logger.Error("Failed to send report ready notification",
				"job_id", job.ID,
				"error", err,
			)
		}
	}

	return &domain.ArtifactRef{
		Key:         key,
		Filename:    fmt.Sprintf("inspection-report-%s.%s", shortID(job.ID), h.generator.FileExtension()),
		ContentType: h.generator.ContentType(),
	}, nil
}

// generateNarrative produces the narrative section text.
func (h *AuditReportHandler) generateNarrative(ctx context.Context, addr string, params *domain.AuditReportParams, findings []report.Finding) (string, error) {
	lines := make([]string, 0, len(findings))
	for _, f := range findings {
		line := f.Description
		if f.Deficient {
			line = "[deficient] " + line
		}
		lines = append(lines, line)
	}

	prompt := anthropic.BuildAuditNarrativePrompt(addr, params.Notes, params.Recommendations, lines)

	text, err := h.narrative.Generate(ctx, anthropic.AuditNarrativeSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("generate narrative: %w", err)
	}
	return text, nil
}

// filterFindings applies the deficiency_only / include_all flags.
// include_all wins when both are set.
func filterFindings(findings []report.Finding, params *domain.AuditReportParams) []report.Finding {
	if params.IncludeAll || !params.DeficiencyOnly {
		return findings
	}
	out := make([]report.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Deficient {
			out = append(out, f)
		}
	}
	return out
}
