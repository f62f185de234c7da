package jobs

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oversitehq/oversite/internal/ai"
	"github.com/oversitehq/oversite/internal/ai/anthropic"
	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/metrics"
	"github.com/oversitehq/oversite/internal/report"
	"github.com/oversitehq/oversite/internal/storage"
)

// LocationOverviewHandler generates location overview documents covering
// the inspection activity of a location across a date range.
type LocationOverviewHandler struct {
	source    AuditSource
	narrative ai.NarrativeGenerator
	generator report.Generator
	storage   storage.Storage
	logger    *slog.Logger

	// now is stubbed in tests for deterministic preset resolution.
	now func() time.Time
}

// NewLocationOverviewHandler creates a handler for location_overview jobs.
func NewLocationOverviewHandler(
	source AuditSource,
	narrative ai.NarrativeGenerator,
	store storage.Storage,
	logger *slog.Logger,
) *LocationOverviewHandler {
	return &LocationOverviewHandler{
		source:    source,
		narrative: narrative,
		generator: report.NewPDFGenerator(),
		storage:   store,
		logger:    logger,
		now:       time.Now,
	}
}

// Type returns the job type this handler processes.
func (h *LocationOverviewHandler) Type() domain.JobType {
	return domain.JobTypeLocationOverview
}

// Handle generates the report for a claimed location_overview job.
func (h *LocationOverviewHandler) Handle(ctx context.Context, job *domain.ReportJob) (*domain.ArtifactRef, error) {
	params, err := job.OverviewParams()
	if err != nil {
		return nil, err
	}

	start, end, err := h.resolveRange(params)
	if err != nil {
		return nil, err
	}

	h.logger.Info("Generating location overview",
		"job_id", job.ID,
		"location_id", params.LocationID,
		"range_start", start.Format(domain.DateLayout),
		"range_end", end.Format(domain.DateLayout),
	)

	// 1. Fetch the location's activity for the period
	locationName, activity, err := h.source.FetchActivity(ctx, params.LocationID, start, end)
	if err != nil {
		return nil, err
	}

	// 2. Generate the narrative
	lines := make([]string, 0, len(activity))
	for _, a := range activity {
		lines = append(lines, fmt.Sprintf("%s: %s (%d deficiencies)",
			a.Date.Format(domain.DateLayout), a.Summary, a.Deficiencies))
	}
	prompt := anthropic.BuildOverviewNarrativePrompt(locationName, start, end, lines)

	narrative, err := h.narrative.Generate(ctx, anthropic.OverviewNarrativeSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate narrative: %w", err)
	}

	// 3. Render the document
	data := &report.ReportData{
		Kind:         report.ReportKindOverview,
		Title:        "Location Overview - " + locationName,
		GeneratedAt:  time.Now(),
		Narrative:    narrative,
		LocationName: locationName,
		RangeStart:   start,
		RangeEnd:     end,
		RangeLabel:   params.RangePreset,
		Activity:     activity,
	}

	var buf bytes.Buffer
	size, err := h.generator.Generate(ctx, data, &buf)
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}

	// 4. Upload to storage
	key := storage.ReportKey(job.ID, h.generator.FileExtension())
	err = h.storage.Put(ctx, key, &buf, storage.PutOptions{
		ContentType: h.generator.ContentType(),
		Overwrite:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}

	metrics.ReportsGenerated.WithLabelValues(string(job.Type)).Inc()
	h.logger.Info("Location overview generated",
		"job_id", job.ID,
		"storage_key", key,
		"size_bytes", size,
		"activity_count", len(activity),
	)

	return &domain.ArtifactRef{
		Key:         key,
		Filename:    fmt.Sprintf("location-overview-%s.%s", shortID(job.ID), h.generator.FileExtension()),
		ContentType: h.generator.ContentType(),
	}, nil
}

// resolveRange turns the job's preset or explicit dates into concrete
// bounds. Presets are resolved at generation time, not at submission.
func (h *LocationOverviewHandler) resolveRange(params *domain.OverviewReportParams) (time.Time, time.Time, error) {
	if params.RangePreset != "" {
		start, end, ok := domain.ResolveRange(params.RangePreset, h.now())
		if !ok {
			return time.Time{}, time.Time{}, fmt.Errorf("unknown range preset: %s", params.RangePreset)
		}
		return start, end, nil
	}

	start, err := time.Parse(domain.DateLayout, params.RangeStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range start: %w", err)
	}
	end, err := time.Parse(domain.DateLayout, params.RangeEnd)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse range end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("range end %s precedes start %s", params.RangeEnd, params.RangeStart)
	}

	return start, end, nil
}

// shortID returns the first segment of a UUID for use in filenames.
func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
