package ai

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// NarrativeGenerator produces the narrative text sections of a report from
// a pair of prompts. Implementations call a remote model API and must
// bound every request with a timeout so a claimed job always reaches
// completion.
type NarrativeGenerator interface {
	// Generate returns the narrative for the given prompts.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// UsageInfo tracks API usage for cost monitoring.
type UsageInfo struct {
	Model        string        // model used
	InputTokens  int           // tokens in the request
	OutputTokens int           // tokens in the response
	CostCents    int           // estimated cost in cents
	Duration     time.Duration // request duration
}

// ProviderConfig contains common configuration for narrative providers.
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for narrative provider operations
var (
	// ERateLimit indicates the API rate limit has been exceeded
	ERateLimit = errors.New("narrative provider rate limit exceeded")

	// ETimeout indicates the request timed out
	ETimeout = errors.New("narrative request timed out")

	// EUnavailable indicates the service is temporarily unavailable
	EUnavailable = errors.New("narrative service temporarily unavailable")

	// EUnauthorized indicates invalid API credentials
	EUnauthorized = errors.New("narrative provider authentication failed")

	// EEmptyResponse indicates the model returned no usable text
	EEmptyResponse = errors.New("narrative provider returned no text")
)

// IsRetryable returns true if the error is transient and can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ERateLimit) ||
		errors.Is(err, ETimeout) ||
		errors.Is(err, EUnavailable)
}

// WrapError wraps an error with context about the narrative operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("narrative %s: %w", operation, err)
}
