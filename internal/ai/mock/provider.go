// Package mock provides a configurable narrative generator for testing.
package mock

import (
	"context"
	"sync"
)

// Provider is a mock narrative generator with configurable responses.
type Provider struct {
	mu sync.Mutex

	// Response is returned by Generate when Error is nil.
	Response string

	// Error, if set, is returned by every Generate call.
	Error error

	// GenerateCalls counts calls to Generate.
	GenerateCalls int

	// LastSystemPrompt holds the system prompt of the most recent call.
	LastSystemPrompt string

	// LastUserPrompt holds the user prompt of the most recent call.
	LastUserPrompt string
}

// New creates a mock provider with a canned response.
func New() *Provider {
	return &Provider{
		Response: "Mock narrative: the inspection found the property in acceptable condition.",
	}
}

// Generate returns the configured response or error.
func (p *Provider) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls++
	p.LastSystemPrompt = systemPrompt
	p.LastUserPrompt = userPrompt

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if p.Error != nil {
		return "", p.Error
	}
	return p.Response, nil
}

// Reset clears call counters and recorded prompts.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.GenerateCalls = 0
	p.LastSystemPrompt = ""
	p.LastUserPrompt = ""
}
