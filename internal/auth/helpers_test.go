package auth_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/auth/authtest"
)

const testSecret = "test-secret-with-enough-entropy"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *authtest.MemoryStore
	mailer  *authtest.RecordingMailer
	clock   *authtest.Clock
	tokens  *auth.TokenCodec
	otp     *auth.OTPManager
	service *auth.CredentialService
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, elevationCode string) *fixture {
	t.Helper()

	f := &fixture{
		store:  authtest.NewMemoryStore(),
		mailer: &authtest.RecordingMailer{},
		clock:  authtest.NewClock(epoch),
	}

	tokens, err := auth.NewTokenCodec(testSecret, auth.DefaultSessionTTL)
	require.NoError(t, err)
	f.tokens = tokens.WithClock(f.clock.Now)

	f.otp = auth.NewOTPManager(f.store, f.mailer, authtest.PlainTemplates{}, auth.OTPConfig{}, quietLogger()).
		WithClock(f.clock.Now)

	f.service, err = auth.NewCredentialService(auth.CredentialDeps{
		Store:         f.store,
		Hasher:        &auth.BcryptHasher{Cost: bcrypt.MinCost},
		Tokens:        f.tokens,
		OTP:           f.otp,
		Mailer:        f.mailer,
		Templates:     authtest.PlainTemplates{},
		Logger:        quietLogger(),
		ElevationCode: elevationCode,
	})
	require.NoError(t, err)
	return f
}

// lastCode returns the most recent code mailed with subject.
func (f *fixture) lastCode(t *testing.T, subject string) string {
	t.Helper()
	msgs := f.mailer.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Subject == subject {
			return msgs[i].HTML
		}
	}
	t.Fatalf("no %q message sent", subject)
	return ""
}

func (f *fixture) register(t *testing.T, email, password string) *auth.RegisterResult {
	t.Helper()
	res, err := f.service.Register(t.Context(), auth.RegisterInput{
		Email:    email,
		Password: password,
		Phone:    "12345678",
		Age:      "30",
	})
	require.NoError(t, err)
	return res
}
