package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/auth/authtest"
	"github.com/bookly/authcore/internal/config"
	"github.com/bookly/authcore/internal/metrics"
)

const (
	testSecret    = "server-test-secret-with-entropy"
	testElevation = "let-me-in"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	t       *testing.T
	store   *authtest.MemoryStore
	mailer  *authtest.RecordingMailer
	clock   *authtest.Clock
	tokens  *auth.TokenCodec
	redis   *miniredis.Miniredis
	server  *Server
	handler http.Handler
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{
		t:      t,
		store:  authtest.NewMemoryStore(),
		mailer: &authtest.RecordingMailer{},
		clock:  authtest.NewClock(epoch),
		redis:  miniredis.RunT(t),
	}

	tokens, err := auth.NewTokenCodec(testSecret, auth.DefaultSessionTTL)
	require.NoError(t, err)
	h.tokens = tokens.WithClock(h.clock.Now)

	otp := auth.NewOTPManager(h.store, h.mailer, authtest.PlainTemplates{}, auth.OTPConfig{}, logger).
		WithClock(h.clock.Now)
	accounts, err := auth.NewCredentialService(auth.CredentialDeps{
		Store:         h.store,
		Hasher:        &auth.BcryptHasher{Cost: bcrypt.MinCost},
		Tokens:        h.tokens,
		OTP:           otp,
		Mailer:        h.mailer,
		Templates:     authtest.PlainTemplates{},
		Logger:        logger,
		ElevationCode: testElevation,
	})
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: h.redis.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := prometheus.NewRegistry()
	metrics.RegisterMetrics(reg)

	h.server = NewServer(cfg, accounts, auth.NewRateLimiter(client, nil), &auth.AuditLogger{Redis: client, MaxLen: 100}, logger)
	h.server.Gatherer = reg
	h.handler = h.server.Router()
	return h
}

type response struct {
	*httptest.ResponseRecorder
	body map[string]interface{}
}

func (r response) cookie(name string) *http.Cookie {
	for _, c := range r.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type requestOption func(*http.Request)

func withBearer(token string) requestOption {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(token string) requestOption {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token}) }
}

func fromIP(addr string) requestOption {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func (h *harness) do(method, path string, body interface{}, opts ...requestOption) response {
	h.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	res := response{ResponseRecorder: rec}
	if bytes.HasPrefix(bytes.TrimSpace(rec.Body.Bytes()), []byte("{")) {
		require.NoError(h.t, json.Unmarshal(rec.Body.Bytes(), &res.body))
	}
	return res
}

func (h *harness) lastCode(subject string) string {
	h.t.Helper()
	msgs := h.mailer.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Subject == subject {
			return msgs[i].HTML
		}
	}
	h.t.Fatalf("no %q message sent", subject)
	return ""
}

// signup registers email and returns its id and session token.
func (h *harness) signup(email, password string, extra map[string]interface{}) (string, string) {
	h.t.Helper()
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"phone":    "12345678",
		"age":      30,
	}
	for k, v := range extra {
		body[k] = v
	}
	res := h.do(http.MethodPost, "/api/auth/register", body)
	require.Equal(h.t, http.StatusOK, res.Code, res.Body.String())
	cookie := res.cookie(auth.SessionCookieName)
	require.NotNil(h.t, cookie)
	return res.body["userId"].(string), cookie.Value
}

func (h *harness) markVerified(id string) {
	h.t.Helper()
	verified := true
	require.NoError(h.t, h.store.UpdateFields(context.Background(), id, auth.AccountUpdate{IsVerified: &verified}, nil))
}
