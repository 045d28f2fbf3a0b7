package email

import (
	"context"
	"log/slog"
)

// LogMailer writes messages to the log instead of sending them. Development only.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, to, subject, html string) error {
	m.Logger.InfoContext(ctx, "email not sent (log provider)", "to", to, "subject", subject)
	m.Logger.DebugContext(ctx, "email body", "to", to, "html", html)
	return nil
}
