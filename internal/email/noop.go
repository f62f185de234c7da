package email

import (
	"context"
	"log/slog"
)

// NoopNotifier logs notifications without sending them. It is used when
// no SMTP relay is configured.
type NoopNotifier struct {
	logger *slog.Logger

	// SendCalls counts calls to SendReportReady, for tests.
	SendCalls int
}

// NewNoopNotifier creates a NoopNotifier.
func NewNoopNotifier(logger *slog.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger}
}

// SendReportReady logs the notification and returns nil.
func (n *NoopNotifier) SendReportReady(ctx context.Context, to, name, downloadURL string) error {
	n.SendCalls++
	n.logger.Info("report ready notification suppressed (no mail relay configured)",
		"to", to,
		"download_url", downloadURL,
	)
	return nil
}

var _ Notifier = (*NoopNotifier)(nil)
