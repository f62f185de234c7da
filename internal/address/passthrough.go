package address

import (
	"context"
	"strings"
)

// PassthroughValidator accepts any non-empty address without calling an
// external service. It is the development and test validator.
type PassthroughValidator struct {
	// Error, if set, is returned by every Validate call.
	Error error

	// ValidateCalls counts calls to Validate.
	ValidateCalls int
}

// NewPassthrough creates a PassthroughValidator.
func NewPassthrough() *PassthroughValidator {
	return &PassthroughValidator{}
}

// Validate returns the raw address, trimmed, as its own normal form.
func (v *PassthroughValidator) Validate(ctx context.Context, raw string) (NormalizedAddress, error) {
	v.ValidateCalls++

	if v.Error != nil {
		return NormalizedAddress{}, v.Error
	}

	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return NormalizedAddress{}, EInvalidAddress
	}

	return NormalizedAddress{Line1: trimmed}, nil
}
