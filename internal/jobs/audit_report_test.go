package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oversitehq/oversite/internal/address"
	"github.com/oversitehq/oversite/internal/ai/mock"
	"github.com/oversitehq/oversite/internal/domain"
	"github.com/oversitehq/oversite/internal/email"
	"github.com/oversitehq/oversite/internal/report"
	"github.com/oversitehq/oversite/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStorage(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: t.TempDir()}, testLogger())
	require.NoError(t, err)
	return s
}

func testFindings() []report.Finding {
	return []report.Finding{
		{Category: "electrical", Description: "Exposed wiring in utility room", Deficient: true, RecordedAt: time.Now()},
		{Category: "plumbing", Description: "Water heater within service life", Deficient: false, RecordedAt: time.Now()},
		{Category: "roofing", Description: "Missing shingles on south slope", Deficient: true, RecordedAt: time.Now()},
	}
}

func auditJob(t *testing.T, params domain.AuditReportParams) *domain.ReportJob {
	t.Helper()
	params.Canonicalize()
	payload, err := json.Marshal(&params)
	require.NoError(t, err)
	return &domain.ReportJob{
		ID:     uuid.New(),
		Type:   domain.JobTypeAuditReport,
		Params: payload,
	}
}

func TestAuditReportHandler_Handle(t *testing.T) {
	source := &StaticSource{Findings: testFindings()}
	validator := address.NewPassthrough()
	narrative := mock.New()
	artifacts := testStorage(t)
	notifier := email.NewNoopNotifier(testLogger())

	h := NewAuditReportHandler(source, validator, narrative, artifacts, notifier, testLogger())
	assert.Equal(t, domain.JobTypeAuditReport, h.Type())

	job := auditJob(t, domain.AuditReportParams{
		Address:         "123 Main St, Springfield",
		Notes:           "roof inspected",
		Recommendations: "replace gutters",
		Cover: domain.CoverPage{
			Owner:        "Springfield Holdings",
			ContactName:  "Jo Field",
			ContactEmail: "jo@example.com",
		},
		AuditIDs: []uuid.UUID{uuid.New()},
	})

	artifact, err := h.Handle(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, artifact)

	assert.Equal(t, "application/pdf", artifact.ContentType)
	assert.True(t, strings.HasPrefix(artifact.Filename, "inspection-report-"))
	assert.True(t, strings.HasSuffix(artifact.Filename, ".pdf"))

	// The document was uploaded under the returned key.
	exists, err := artifacts.Exists(context.Background(), artifact.Key)
	require.NoError(t, err)
	assert.True(t, exists)

	// The validated address and the findings fed the narrative prompt.
	assert.Equal(t, 1, narrative.GenerateCalls)
	assert.Contains(t, narrative.LastUserPrompt, "123 Main St, Springfield")
	assert.Contains(t, narrative.LastUserPrompt, "Exposed wiring in utility room")
	assert.Contains(t, narrative.LastUserPrompt, "[deficient]")
	assert.Equal(t, 1, validator.ValidateCalls)

	// The cover contact was notified.
	assert.Equal(t, 1, notifier.SendCalls)
}

func TestAuditReportHandler_NoContactNoNotification(t *testing.T) {
	notifier := email.NewNoopNotifier(testLogger())
	h := NewAuditReportHandler(&StaticSource{}, address.NewPassthrough(), mock.New(), testStorage(t), notifier, testLogger())

	job := auditJob(t, domain.AuditReportParams{Address: "123 Main St"})

	_, err := h.Handle(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 0, notifier.SendCalls)
}

func TestAuditReportHandler_InvalidAddressFails(t *testing.T) {
	validator := address.NewPassthrough()
	validator.Error = address.EInvalidAddress

	h := NewAuditReportHandler(&StaticSource{}, validator, mock.New(), testStorage(t), email.NewNoopNotifier(testLogger()), testLogger())
	job := auditJob(t, domain.AuditReportParams{Address: "nowhere"})

	_, err := h.Handle(context.Background(), job)
	require.Error(t, err)
	assert.ErrorIs(t, err, address.EInvalidAddress)
}

func TestAuditReportHandler_SourceErrorFails(t *testing.T) {
	source := &StaticSource{Err: errors.New("upstream unavailable")}

	h := NewAuditReportHandler(source, address.NewPassthrough(), mock.New(), testStorage(t), email.NewNoopNotifier(testLogger()), testLogger())
	job := auditJob(t, domain.AuditReportParams{Address: "123 Main St"})

	_, err := h.Handle(context.Background(), job)
	assert.Error(t, err)
}

func TestAuditReportHandler_NarrativeErrorFails(t *testing.T) {
	narrative := mock.New()
	narrative.Error = errors.New("rate limited")

	h := NewAuditReportHandler(&StaticSource{}, address.NewPassthrough(), narrative, testStorage(t), email.NewNoopNotifier(testLogger()), testLogger())
	job := auditJob(t, domain.AuditReportParams{Address: "123 Main St"})

	_, err := h.Handle(context.Background(), job)
	assert.Error(t, err)
}

func TestAuditReportHandler_RejectsWrongJobType(t *testing.T) {
	h := NewAuditReportHandler(&StaticSource{}, address.NewPassthrough(), mock.New(), testStorage(t), email.NewNoopNotifier(testLogger()), testLogger())

	params := domain.OverviewReportParams{LocationID: uuid.New(), RangePreset: domain.RangePresetLast30Days}
	payload, err := json.Marshal(&params)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), &domain.ReportJob{
		ID:     uuid.New(),
		Type:   domain.JobTypeLocationOverview,
		Params: payload,
	})
	assert.Error(t, err)
}

func TestFilterFindings(t *testing.T) {
	findings := testFindings()

	tests := []struct {
		name   string
		params domain.AuditReportParams
		want   int
	}{
		{
			name:   "default keeps everything",
			params: domain.AuditReportParams{},
			want:   3,
		},
		{
			name:   "deficiency only drops compliant findings",
			params: domain.AuditReportParams{DeficiencyOnly: true},
			want:   2,
		},
		{
			name:   "include all wins over deficiency only",
			params: domain.AuditReportParams{DeficiencyOnly: true, IncludeAll: true},
			want:   3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := filterFindings(findings, &tt.params)
			assert.Len(t, got, tt.want)
			if tt.params.DeficiencyOnly && !tt.params.IncludeAll {
				for _, f := range got {
					assert.True(t, f.Deficient)
				}
			}
		})
	}
}
