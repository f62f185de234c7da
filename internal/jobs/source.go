// Package jobs implements the report generation handlers dispatched by the
// worker pool.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oversitehq/oversite/internal/report"
)

// AuditSource resolves audit and location ids into report content. The
// queue service does not own audit data; it lives in the upstream
// application and is fetched at generation time.
type AuditSource interface {
	// FetchFindings returns the findings recorded for the given audits.
	FetchFindings(ctx context.Context, auditIDs []uuid.UUID) ([]report.Finding, error)

	// FetchActivity returns the location's display name and its
	// inspection activity inside [start, end].
	FetchActivity(ctx context.Context, locationID uuid.UUID, start, end time.Time) (string, []report.ActivityItem, error)
}

// =============================================================================
// HTTP Source
// =============================================================================

// HTTPSourceConfig configures the HTTP audit source.
type HTTPSourceConfig struct {
	BaseURL        string        // upstream API base URL
	APIKey         string        // bearer token for the upstream API
	RequestTimeout time.Duration // per-request timeout
}

// HTTPSource fetches audit data from the upstream application API.
type HTTPSource struct {
	config HTTPSourceConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPSource creates an HTTPSource.
func NewHTTPSource(config HTTPSourceConfig, logger *slog.Logger) (*HTTPSource, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("audit source base URL is required")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 15 * time.Second
	}

	return &HTTPSource{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// FetchFindings returns the findings recorded for the given audits.
func (s *HTTPSource) FetchFindings(ctx context.Context, auditIDs []uuid.UUID) ([]report.Finding, error) {
	ids := make([]string, len(auditIDs))
	for i, id := range auditIDs {
		ids[i] = id.String()
	}
	endpoint := fmt.Sprintf("%s/internal/audits/findings?ids=%s",
		strings.TrimSuffix(s.config.BaseURL, "/"),
		url.QueryEscape(strings.Join(ids, ",")),
	)

	var payload struct {
		Findings []struct {
			Category    string    `json:"category"`
			Description string    `json:"description"`
			Deficient   bool      `json:"deficient"`
			RecordedAt  time.Time `json:"recorded_at"`
		} `json:"findings"`
	}
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch findings: %w", err)
	}

	findings := make([]report.Finding, 0, len(payload.Findings))
	for _, f := range payload.Findings {
		findings = append(findings, report.Finding{
			Category:    f.Category,
			Description: f.Description,
			Deficient:   f.Deficient,
			RecordedAt:  f.RecordedAt,
		})
	}

	return findings, nil
}

// FetchActivity returns the location's name and activity in the range.
func (s *HTTPSource) FetchActivity(ctx context.Context, locationID uuid.UUID, start, end time.Time) (string, []report.ActivityItem, error) {
	endpoint := fmt.Sprintf("%s/internal/locations/%s/activity?start=%s&end=%s",
		strings.TrimSuffix(s.config.BaseURL, "/"),
		locationID,
		start.Format("2006-01-02"),
		end.Format("2006-01-02"),
	)

	var payload struct {
		LocationName string `json:"location_name"`
		Activity     []struct {
			Date         time.Time `json:"date"`
			Summary      string    `json:"summary"`
			Deficiencies int       `json:"deficiencies"`
		} `json:"activity"`
	}
	if err := s.getJSON(ctx, endpoint, &payload); err != nil {
		return "", nil, fmt.Errorf("fetch activity: %w", err)
	}

	items := make([]report.ActivityItem, 0, len(payload.Activity))
	for _, a := range payload.Activity {
		items = append(items, report.ActivityItem{
			Date:         a.Date,
			Summary:      a.Summary,
			Deficiencies: a.Deficiencies,
		})
	}

	return payload.LocationName, items, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}

	return nil
}

// =============================================================================
// Static Source
// =============================================================================

// StaticSource serves fixed data. It is the development and test source.
type StaticSource struct {
	LocationName string
	Findings     []report.Finding
	Activity     []report.ActivityItem
	Err          error
}

// FetchFindings returns the configured findings.
func (s *StaticSource) FetchFindings(ctx context.Context, auditIDs []uuid.UUID) ([]report.Finding, error) {
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Findings, nil
}

// FetchActivity returns the configured location name and activity.
func (s *StaticSource) FetchActivity(ctx context.Context, locationID uuid.UUID, start, end time.Time) (string, []report.ActivityItem, error) {
	if s.Err != nil {
		return "", nil, s.Err
	}
	name := s.LocationName
	if name == "" {
		name = "Location " + locationID.String()[:8]
	}
	return name, s.Activity, nil
}
