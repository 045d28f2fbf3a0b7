package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/logging"
	"github.com/bookly/authcore/internal/metrics"
)

type ctxKey string

const accountContextKey ctxKey = "account"

// extractToken prefers an Authorization bearer header and falls back to the
// session cookie.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			if token = strings.TrimSpace(token); token != "" {
				return token
			}
		}
	}
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
			return
		}

		account, err := s.Accounts.IsAuthenticated(r.Context(), token)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthorized) {
				logging.LogError(r.Context(), s.Logger, "authenticate: account lookup failed", err)
			}
			writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
			return
		}

		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireRoles(roles []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicAccess(roles) {
				next.ServeHTTP(w, r)
				return
			}

			account := accountFromContext(r.Context())
			if account == nil {
				writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
				return
			}

			if !roleAllowed(roles, string(account.Role)) {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requireSelfOrAdmin lets the request through when the URL parameter names
// the caller's own account or the caller is an admin.
func (s *Server) requireSelfOrAdmin(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account := accountFromContext(r.Context())
			if account == nil {
				writeError(w, http.StatusUnauthorized, "Not Authorized. Login Again")
				return
			}
			if account.ID != chi.URLParam(r, param) && !account.IsAdmin() {
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimit counts the request against the caller's IP in class. Requests
// over the limit are answered with 429 before anything else runs.
func (s *Server) rateLimit(class auth.RateLimitClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, s.trustedProxies)
			decision, err := s.RateLimiter.Allow(r.Context(), class, ip)
			if err != nil {
				logging.LogError(r.Context(), s.Logger, "rate limit check failed", err, "class", class)
				writeError(w, http.StatusInternalServerError, "Something went wrong, please try again later")
				return
			}
			if !decision.Allowed {
				metrics.RecordRateLimited(string(class))
				s.audit(r, auth.AuditRateLimited, "", map[string]interface{}{"class": string(class)})
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(decision.RetryAfter)))
				writeError(w, http.StatusTooManyRequests, decision.Message)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}

// recordRequests counts responses by route pattern so ids in paths do not
// create new series.
func (s *Server) recordRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, status)
	})
}

func retryAfterSeconds(d time.Duration) int {
	return max(int(math.Ceil(d.Seconds())), 1)
}

func accountFromContext(ctx context.Context) *auth.Account {
	if val, ok := ctx.Value(accountContextKey).(*auth.Account); ok {
		return val
	}
	return nil
}
