// Package email sends transactional notifications.
//
// This package defines a Notifier interface with an SMTP implementation
// (Mailhog for development, any standard SMTP relay for production) and a
// no-op implementation for deployments without a mail relay.
package email

import (
	"context"
)

// Notifier sends report lifecycle notifications.
//
// All methods are context-aware for timeout and cancellation support.
type Notifier interface {
	// SendReportReady notifies a contact that their report is ready.
	// Parameters:
	// - to: Recipient email address
	// - name: Recipient's name for personalization (may be empty)
	// - downloadURL: URL where the report can be downloaded
	SendReportReady(ctx context.Context, to, name, downloadURL string) error
}

// Email represents a single email message.
type Email struct {
	To       string // Recipient email address
	Subject  string // Email subject line
	TextBody string // Plain text content
}

// SMTPConfig holds SMTP server configuration.
type SMTPConfig struct {
	Host     string // SMTP server hostname (e.g., "localhost" for Mailhog)
	Port     int    // SMTP server port (e.g., 1025 for Mailhog)
	Username string // SMTP authentication username (empty for Mailhog)
	Password string // SMTP authentication password (empty for Mailhog)
	From     string // Default sender email address
	FromName string // Default sender display name
}

const (
	// DefaultFromEmail is the default sender email for notifications.
	DefaultFromEmail = "noreply@oversite.app"

	// DefaultFromName is the default sender display name.
	DefaultFromName = "Oversite"
)
