package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/logging"
	"github.com/bookly/authcore/internal/metrics"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "message": message})
}

func writeSuccess(w http.ResponseWriter, fields map[string]interface{}) {
	body := map[string]interface{}{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, http.StatusOK, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// serviceErrors maps credential service sentinels onto their HTTP answer.
// Anything unlisted is an internal failure.
var serviceErrors = []struct {
	err     error
	status  int
	message string
}{
	{auth.ErrConflict, http.StatusConflict, "User already exists"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid email or password"},
	{auth.ErrNotVerified, http.StatusForbidden, "Please verify your account before logging in"},
	{auth.ErrAlreadyVerified, http.StatusConflict, "Account already verified"},
	{auth.ErrInvalidCode, http.StatusBadRequest, "Invalid OTP"},
	{auth.ErrExpired, http.StatusBadRequest, "OTP Expired"},
	{auth.ErrUnauthorized, http.StatusUnauthorized, "Not Authorized. Login Again"},
	{auth.ErrForbidden, http.StatusForbidden, "Forbidden"},
	{auth.ErrNotFound, http.StatusNotFound, "User not found"},
	{auth.ErrEmptyPassword, http.StatusBadRequest, "Password cannot be empty"},
	{auth.ErrConcurrentModification, http.StatusConflict, "Account changed, please try again"},
	{auth.ErrDispatchFailure, http.StatusBadGateway, "Could not send email, please try again later"},
}

// writeServiceError answers err with its mapped status. Internal failures are
// logged with their cause and answered with a generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Message)
		return
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			if m.status >= http.StatusInternalServerError {
				logging.LogError(r.Context(), s.Logger, op+" failed", err)
			}
			writeError(w, m.status, m.message)
			return
		}
	}
	logging.LogError(r.Context(), s.Logger, op+" failed", err)
	writeError(w, http.StatusInternalServerError, "Something went wrong, please try again later")
}

// outcome classifies err for the auth event counters.
func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, auth.ErrStoreUnavailable), errors.Is(err, auth.ErrDispatchFailure):
		return metrics.OutcomeFailure
	case errors.Is(err, auth.ErrValidation):
		return metrics.OutcomeRejected
	}
	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			return metrics.OutcomeRejected
		}
	}
	return metrics.OutcomeFailure
}

// audit records a security event. Audit failures are logged and never fail
// the request.
func (s *Server) audit(r *http.Request, eventType, accountID string, meta map[string]interface{}) {
	if s.Audit == nil {
		return
	}
	err := s.Audit.Log(r.Context(), auth.AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIP(r, s.trustedProxies),
		UserAgent: r.UserAgent(),
		Meta:      meta,
	})
	if err != nil {
		s.Logger.WarnContext(r.Context(), "audit event not recorded", "event", eventType, "error", err)
	}
}

// flexString accepts a JSON string or number, so clients may send age as
// either 30 or "30".
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("must be a string or a number")
	}
	*f = flexString(n.String())
	return nil
}

// flexInt is the pointer-friendly counterpart of flexString for optional
// numeric updates.
type flexInt struct {
	value *int
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	var raw flexString
	if err := raw.UnmarshalJSON(data); err != nil {
		return err
	}
	if raw == "" {
		f.value = nil
		return nil
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return errors.New("must be a whole number")
	}
	f.value = &n
	return nil
}

func clientIP(r *http.Request, trusted []net.IPNet) string {
	remoteHost, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || remoteHost == "" {
		remoteHost = r.RemoteAddr
	}

	// Only trust forwarded headers when the immediate sender is a trusted proxy.
	if remoteHost != "" && isTrustedProxy(remoteHost, trusted) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
		if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
			return strings.TrimSpace(xrip)
		}
	}

	return remoteHost
}

func parseProxyCIDRs(values []string) []net.IPNet {
	var nets []net.IPNet
	for _, v := range values {
		val := strings.TrimSpace(v)
		if val == "" {
			continue
		}
		if ip := net.ParseIP(val); ip != nil {
			mask := net.CIDRMask(128, 128)
			if ip.To4() != nil {
				mask = net.CIDRMask(32, 32)
			}
			nets = append(nets, net.IPNet{IP: ip, Mask: mask})
			continue
		}
		if _, cidr, err := net.ParseCIDR(val); err == nil {
			nets = append(nets, *cidr)
		}
	}
	return nets
}

func isTrustedProxy(ipStr string, proxies []net.IPNet) bool {
	if len(proxies) == 0 {
		return false
	}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
