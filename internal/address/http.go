package address

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DefaultRequestTimeout bounds a single validation request.
const DefaultRequestTimeout = 10 * time.Second

// HTTPConfig configures the HTTP validator.
type HTTPConfig struct {
	BaseURL        string        // validation API endpoint
	APIKey         string        // optional bearer token
	RequestTimeout time.Duration // per-request timeout, defaults to DefaultRequestTimeout
}

// HTTPValidator validates addresses against a normalization API. The API
// is expected to accept a GET with an `address` query parameter and
// return the candidate matches as JSON.
type HTTPValidator struct {
	config HTTPConfig
	client *http.Client
	logger *slog.Logger
}

// NewHTTPValidator creates an HTTPValidator.
func NewHTTPValidator(config HTTPConfig, logger *slog.Logger) (*HTTPValidator, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("address validator base URL is required")
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTPValidator{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// Validate normalizes raw via the remote API.
func (v *HTTPValidator) Validate(ctx context.Context, raw string) (NormalizedAddress, error) {
	if raw == "" {
		return NormalizedAddress{}, EInvalidAddress
	}

	reqURL := fmt.Sprintf("%s?address=%s", v.config.BaseURL, url.QueryEscape(raw))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return NormalizedAddress{}, WrapError("build request", err)
	}
	if v.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+v.config.APIKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return NormalizedAddress{}, WrapError("execute request", EUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return NormalizedAddress{}, WrapError("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parse
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusUnprocessableEntity:
		return NormalizedAddress{}, EInvalidAddress
	case resp.StatusCode >= 500:
		return NormalizedAddress{}, WrapError("execute request", EUnavailable)
	default:
		return NormalizedAddress{}, WrapError("execute request", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var result struct {
		Matches []struct {
			Line1 string `json:"line1"`
			City  string `json:"city"`
			State string `json:"state"`
			Zip   string `json:"zip"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return NormalizedAddress{}, WrapError("parse response", err)
	}

	if len(result.Matches) == 0 {
		return NormalizedAddress{}, EInvalidAddress
	}

	// First match is the best candidate
	m := result.Matches[0]
	normalized := NormalizedAddress{
		Line1: m.Line1,
		City:  m.City,
		State: m.State,
		Zip:   m.Zip,
	}

	v.logger.Debug("address validated", "raw", raw, "normalized", normalized.String())

	return normalized, nil
}
