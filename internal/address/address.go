// Package address validates and normalizes property addresses before
// they reach a report.
package address

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NormalizedAddress is a validated address in canonical form.
type NormalizedAddress struct {
	Line1 string // street address
	City  string
	State string
	Zip   string
}

// String formats the address on a single line for display in reports.
func (a NormalizedAddress) String() string {
	parts := make([]string, 0, 3)
	if a.Line1 != "" {
		parts = append(parts, a.Line1)
	}
	if a.City != "" {
		parts = append(parts, a.City)
	}
	regional := strings.TrimSpace(a.State + " " + a.Zip)
	if regional != "" {
		parts = append(parts, regional)
	}
	return strings.Join(parts, ", ")
}

// Validator checks that a raw address refers to a real place and returns
// its canonical form.
type Validator interface {
	// Validate normalizes raw. It returns EInvalidAddress if the address
	// cannot be resolved and EUnavailable if the backing service cannot
	// be reached.
	Validate(ctx context.Context, raw string) (NormalizedAddress, error)
}

// Error codes for address validation
var (
	// EInvalidAddress indicates the address could not be resolved
	EInvalidAddress = errors.New("address could not be validated")

	// EUnavailable indicates the validation service could not be reached
	EUnavailable = errors.New("address validation service unavailable")
)

// WrapError wraps an error with context about the validation operation.
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("address %s: %w", operation, err)
}
