package email

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/oversitehq/oversite/internal/metrics"
)

// =============================================================================
// SMTP Notifier Implementation
// =============================================================================

// SMTPNotifier sends notifications via SMTP.
//
// This implementation works with:
// - Mailhog (development): No authentication required
// - Any standard SMTP relay (production): Uses username/password authentication
type SMTPNotifier struct {
	config  SMTPConfig
	baseURL string
	logger  *slog.Logger
}

// NewSMTPNotifier creates a new SMTP-based notifier.
//
// baseURL is the application's public URL, used when a caller passes a
// relative download path.
func NewSMTPNotifier(config SMTPConfig, baseURL string, logger *slog.Logger) *SMTPNotifier {
	// Set defaults
	if config.From == "" {
		config.From = DefaultFromEmail
	}
	if config.FromName == "" {
		config.FromName = DefaultFromName
	}

	return &SMTPNotifier{
		config:  config,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// SendReportReady notifies a contact that their report is ready.
func (s *SMTPNotifier) SendReportReady(ctx context.Context, to, name, downloadURL string) error {
	if strings.HasPrefix(downloadURL, "/") {
		downloadURL = s.baseURL + downloadURL
	}

	greeting := "Hello,"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s,", name)
	}

	textBody := fmt.Sprintf(`%s

Your property inspection report is ready. You can download it here:

%s

Thanks,
The Oversite Team
`, greeting, downloadURL)

	email := Email{
		To:       to,
		Subject:  "Your inspection report is ready",
		TextBody: textBody,
	}

	return s.send(ctx, email)
}

// =============================================================================
// Internal Methods
// =============================================================================

// send sends an email via SMTP.
func (s *SMTPNotifier) send(ctx context.Context, email Email) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := s.buildMessage(email)

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	// Auth only when credentials are provided (not needed for Mailhog)
	var auth smtp.Auth
	if s.config.Username != "" && s.config.Password != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	err := smtp.SendMail(addr, auth, s.config.From, []string{email.To}, msg)
	if err != nil {
		metrics.NotificationsSent.WithLabelValues("error").Inc()
		s.logger.Error("failed to send email",
			"to", email.To,
			"subject", email.Subject,
			"error", err,
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	metrics.NotificationsSent.WithLabelValues("sent").Inc()
	s.logger.Info("email sent",
		"to", email.To,
		"subject", email.Subject,
	)

	return nil
}

// buildMessage constructs the raw email message with headers.
func (s *SMTPNotifier) buildMessage(email Email) []byte {
	var buf bytes.Buffer

	fromHeader := fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)

	buf.WriteString(fmt.Sprintf("From: %s\r\n", fromHeader))
	buf.WriteString(fmt.Sprintf("To: %s\r\n", email.To))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(email.TextBody)
	buf.WriteString("\r\n")

	return buf.Bytes()
}

// Compile-time interface check
var _ Notifier = (*SMTPNotifier)(nil)
