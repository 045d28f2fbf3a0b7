package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/metrics"
)

func TestClientIP(t *testing.T) {
	trusted := parseProxyCIDRs([]string{"10.0.0.0/8", "192.168.1.10", " ", "not-an-ip"})
	require.Len(t, trusted, 2)

	tests := []struct {
		name   string
		remote string
		xff    string
		xrip   string
		want   string
	}{
		{name: "direct", remote: "203.0.113.9:5555", want: "203.0.113.9"},
		{name: "untrusted sender cannot spoof", remote: "203.0.113.9:5555", xff: "1.2.3.4", want: "203.0.113.9"},
		{name: "trusted cidr", remote: "10.1.2.3:80", xff: "1.2.3.4, 10.1.2.3", want: "1.2.3.4"},
		{name: "trusted single ip", remote: "192.168.1.10:80", xrip: "5.6.7.8", want: "5.6.7.8"},
		{name: "trusted without headers", remote: "10.1.2.3:80", want: "10.1.2.3"},
		{name: "no port", remote: "203.0.113.9", want: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xrip != "" {
				r.Header.Set("X-Real-IP", tt.xrip)
			}
			assert.Equal(t, tt.want, clientIP(r, trusted))
		})
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: `30`, want: "30"},
		{raw: `"30"`, want: "30"},
		{raw: `" 30 "`, want: "30"},
		{raw: `null`, want: ""},
		{raw: `12345678`, want: "12345678"},
		{raw: `true`, wantErr: true},
		{raw: `[1]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var got flexString
			err := json.Unmarshal([]byte(tt.raw), &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestFlexInt(t *testing.T) {
	var v struct {
		Age flexInt `json:"age"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"age":"42"}`), &v))
	require.NotNil(t, v.Age.value)
	assert.Equal(t, 42, *v.Age.value)

	v.Age = flexInt{}
	require.NoError(t, json.Unmarshal([]byte(`{}`), &v))
	assert.Nil(t, v.Age.value)

	assert.Error(t, json.Unmarshal([]byte(`{"age":"4.5"}`), &v))
}

func TestWriteServiceError(t *testing.T) {
	s := &Server{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	storeDown := oops.Code("ACCOUNT_STORE_FAILED").With("operation", "find account").Wrap(auth.ErrStoreUnavailable)

	tests := []struct {
		name    string
		err     error
		status  int
		message string
		outcome string
	}{
		{"validation", &auth.ValidationError{Field: "Phone", Message: "Missing Details: Phone is required"}, http.StatusBadRequest, "Missing Details: Phone is required", metrics.OutcomeRejected},
		{"conflict", auth.ErrConflict, http.StatusConflict, "User already exists", metrics.OutcomeRejected},
		{"credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password", metrics.OutcomeRejected},
		{"not verified", auth.ErrNotVerified, http.StatusForbidden, "Please verify your account before logging in", metrics.OutcomeRejected},
		{"wrapped unauthorized", fmt.Errorf("%w: token is expired", auth.ErrUnauthorized), http.StatusUnauthorized, "Not Authorized. Login Again", metrics.OutcomeRejected},
		{"expired", auth.ErrExpired, http.StatusBadRequest, "OTP Expired", metrics.OutcomeRejected},
		{"dispatch", fmt.Errorf("issue: %w", auth.ErrDispatchFailure), http.StatusBadGateway, "Could not send email, please try again later", metrics.OutcomeFailure},
		{"store", storeDown, http.StatusInternalServerError, "Something went wrong, please try again later", metrics.OutcomeFailure},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "Something went wrong, please try again later", metrics.OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.writeServiceError(rec, httptest.NewRequest(http.MethodPost, "/", nil), "test", tt.err)

			assert.Equal(t, tt.status, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
			assert.Equal(t, tt.outcome, outcome(tt.err))
		})
	}
	assert.Equal(t, metrics.OutcomeSuccess, outcome(nil))
}

func TestAccessRoles(t *testing.T) {
	assert.True(t, isPublicAccess(accessRoles(http.MethodPost, "/api/auth/login")))
	assert.False(t, isPublicAccess(accessRoles(http.MethodGet, "/api/auth/is-auth")))
	assert.True(t, roleAllowed(accessRoles(http.MethodGet, "/api/admin/accounts/{id}"), string(auth.RoleAdmin)))
	assert.False(t, roleAllowed(accessRoles(http.MethodGet, "/api/admin/accounts/{id}"), string(auth.RoleUser)))
	assert.Panics(t, func() { accessRoles(http.MethodDelete, "/api/auth/login") })
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, retryAfterSeconds(0))
	assert.Equal(t, 1, retryAfterSeconds(200*time.Millisecond))
	assert.Equal(t, 600, retryAfterSeconds(10*time.Minute))
}
