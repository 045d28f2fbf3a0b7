package auth

import (
	"context"
	"time"
)

// Mailer delivers a rendered HTML message to one address.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Templates renders the notification emails. Implementations only substitute
// parameters; wording lives outside the credential core.
type Templates interface {
	VerifyOTP(locale, email, code string, ttl time.Duration) (subject, html string)
	ResetOTP(locale, email, code string, ttl time.Duration) (subject, html string)
	Welcome(locale, name, email, phone string) (subject, html string)
}
