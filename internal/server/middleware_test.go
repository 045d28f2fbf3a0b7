package server

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/auth/authtest"
	"github.com/bookly/authcore/internal/config"
)

func TestLoginRateLimit_SixthAttemptRefused(t *testing.T) {
	h := newHarness(t, config.Config{})
	id, _ := h.signup("frank@example.com", "secret1", nil)
	h.markVerified(id)

	wrong := map[string]string{"email": "frank@example.com", "password": "not-it"}
	right := map[string]string{"email": "frank@example.com", "password": "secret1"}

	for i := 0; i < 5; i++ {
		res := h.do(http.MethodPost, "/api/auth/login", wrong)
		require.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
	}

	res := h.do(http.MethodPost, "/api/auth/login", right)
	require.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Equal(t, false, res.body["success"])
	assert.Contains(t, res.body["message"], "10 minutes")
	retry, err := strconv.Atoi(res.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Greater(t, retry, 0)
	assert.LessOrEqual(t, retry, int((10 * time.Minute).Seconds()))
	assert.Nil(t, res.cookie(auth.SessionCookieName))

	// Other clients are counted separately.
	res = h.do(http.MethodPost, "/api/auth/login", right, fromIP("198.51.100.7:4000"))
	assert.Equal(t, http.StatusOK, res.Code)

	h.redis.FastForward(10*time.Minute + time.Second)
	res = h.do(http.MethodPost, "/api/auth/login", right)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestOTPRateLimit_SharedBetweenVerifyAndReset(t *testing.T) {
	h := newHarness(t, config.Config{})
	_, token := h.signup("grace@example.com", "secret1", nil)
	sentBefore := len(h.mailer.Messages())

	res := h.do(http.MethodPost, "/api/auth/send-verify-otp", nil, withCookie(token))
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	for i := 0; i < 2; i++ {
		res = h.do(http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "grace@example.com"})
		require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	}

	res = h.do(http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "grace@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, res.Code)
	assert.Contains(t, res.body["message"], "15 minutes")
	assert.NotEmpty(t, res.Header().Get("Retry-After"))

	res = h.do(http.MethodPost, "/api/auth/send-verify-otp", nil, withCookie(token))
	assert.Equal(t, http.StatusTooManyRequests, res.Code)

	assert.Len(t, h.mailer.Messages(), sentBefore+3)
}

func TestRateLimiter_FailsClosed(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.redis.Close()

	res := h.do(http.MethodPost, "/api/auth/login", map[string]string{"email": "x@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.Equal(t, false, res.body["success"])
}

func TestRequireAuth_RejectsBadTokens(t *testing.T) {
	h := newHarness(t, config.Config{})
	deletedID, deletedToken := h.signup("gone@example.com", "secret1", nil)
	h.store.Delete(deletedID)
	_, liveToken := h.signup("heidi@example.com", "secret1", nil)

	other, err := auth.NewTokenCodec("a-different-secret", auth.DefaultSessionTTL)
	require.NoError(t, err)
	forged, _, err := other.WithClock(h.clock.Now).Issue(deletedID)
	require.NoError(t, err)

	tests := []struct {
		name string
		opts []requestOption
	}{
		{name: "no token"},
		{name: "garbage bearer", opts: []requestOption{withBearer("not-a-jwt")}},
		{name: "wrong secret", opts: []requestOption{withBearer(forged)}},
		{name: "deleted account", opts: []requestOption{withCookie(deletedToken)}},
		{name: "invalid bearer wins over valid cookie", opts: []requestOption{withBearer("not-a-jwt"), withCookie(liveToken)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.do(http.MethodGet, "/api/auth/is-auth", nil, tt.opts...)
			assert.Equal(t, http.StatusUnauthorized, res.Code)
			assert.Equal(t, false, res.body["success"])
		})
	}

	res := h.do(http.MethodGet, "/api/auth/is-auth", nil, withBearer(liveToken), withCookie("stale"))
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestRequireAuth_RejectsExpiredToken(t *testing.T) {
	h := newHarness(t, config.Config{})
	_, token := h.signup("ivan@example.com", "secret1", nil)

	h.clock.Advance(auth.DefaultSessionTTL - time.Second)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/api/auth/is-auth", nil, withCookie(token)).Code)

	h.clock.Advance(2 * time.Second)
	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/auth/is-auth", nil, withCookie(token)).Code)
}

func TestSelfOrAdmin(t *testing.T) {
	h := newHarness(t, config.Config{})
	aliceID, alice := h.signup("alice@example.com", "secret1", nil)
	bobID, _ := h.signup("bob@example.com", "secret1", nil)
	_, admin := h.signup("root@example.com", "secret1", map[string]interface{}{"elevationCode": testElevation})

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"self read", http.MethodGet, "/api/accounts/" + aliceID, alice, http.StatusOK},
		{"other read", http.MethodGet, "/api/accounts/" + bobID, alice, http.StatusForbidden},
		{"other update", http.MethodPatch, "/api/accounts/" + bobID, alice, http.StatusForbidden},
		{"admin reads other", http.MethodGet, "/api/accounts/" + bobID, admin, http.StatusOK},
		{"user on admin route", http.MethodGet, "/api/admin/accounts/" + bobID, alice, http.StatusForbidden},
		{"admin route", http.MethodGet, "/api/admin/accounts/" + bobID, admin, http.StatusOK},
		{"admin reads missing", http.MethodGet, "/api/admin/accounts/does-not-exist", admin, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.method == http.MethodPatch {
				body = map[string]interface{}{"age": 50}
			}
			res := h.do(tt.method, tt.path, body, withBearer(tt.token))
			assert.Equal(t, tt.status, res.Code, res.Body.String())
		})
	}

	bob, err := h.store.FindByID(t.Context(), bobID)
	require.NoError(t, err)
	assert.Equal(t, 30, bob.Age)
}

func TestExtractToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{name: "none"},
		{name: "bearer", header: "Bearer abc", want: "abc"},
		{name: "bearer case insensitive", header: "bearer abc", want: "abc"},
		{name: "cookie", cookie: "xyz", want: "xyz"},
		{name: "header first", header: "Bearer abc", cookie: "xyz", want: "abc"},
		{name: "other scheme falls back to cookie", header: "Basic Zm9vOmJhcg==", cookie: "xyz", want: "xyz"},
		{name: "empty bearer falls back to cookie", header: "Bearer ", cookie: "xyz", want: "xyz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, extractToken(r))
		})
	}
}

func TestRateLimitedRequestSendsNothing(t *testing.T) {
	h := newHarness(t, config.Config{})
	h.signup("judy@example.com", "secret1", nil)

	for i := 0; i < 3; i++ {
		h.do(http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "judy@example.com"})
	}
	resets := 0
	for _, m := range h.mailer.Messages() {
		if m.Subject == authtest.ResetSubject {
			resets++
		}
	}

	res := h.do(http.MethodPost, "/api/auth/send-reset-otp", map[string]string{"email": "judy@example.com"})
	require.Equal(t, http.StatusTooManyRequests, res.Code)

	after := 0
	for _, m := range h.mailer.Messages() {
		if m.Subject == authtest.ResetSubject {
			after++
		}
	}
	assert.Equal(t, 3, resets)
	assert.Equal(t, resets, after)
}
