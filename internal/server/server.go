package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/config"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	Accounts    *auth.CredentialService
	RateLimiter *auth.RateLimiter
	Audit       *auth.AuditLogger
	Config      config.Config
	Logger      *slog.Logger
	// Gatherer backs /metrics. Defaults to the Prometheus default gatherer.
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck

	trustedProxies []net.IPNet
	cookies        auth.CookiePolicy
}

func NewServer(cfg config.Config, accounts *auth.CredentialService, rl *auth.RateLimiter, audit *auth.AuditLogger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Accounts:       accounts,
		RateLimiter:    rl,
		Audit:          audit,
		Config:         cfg,
		Logger:         logger,
		Gatherer:       prometheus.DefaultGatherer,
		Checks:         map[string]HealthCheck{},
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
		cookies: auth.CookiePolicy{
			Production: cfg.IsProduction(),
			MaxAge:     accounts.SessionTTL(),
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.Logger.Handler(), slog.LevelInfo),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders(s.Config.IsProduction()))
	r.Use(s.recordRequests)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))

	r.With(s.requireRoles(accessRoles(http.MethodPost, "/api/auth/register"))).Post("/api/auth/register", s.handleRegister)
	r.With(s.rateLimit(auth.RateLimitLogin), s.requireRoles(accessRoles(http.MethodPost, "/api/auth/login"))).Post("/api/auth/login", s.handleLogin)
	r.With(s.requireRoles(accessRoles(http.MethodPost, "/api/auth/logout"))).Post("/api/auth/logout", s.handleLogout)
	r.With(s.rateLimit(auth.RateLimitOTP), s.requireRoles(accessRoles(http.MethodPost, "/api/auth/send-reset-otp"))).Post("/api/auth/send-reset-otp", s.handleSendResetOTP)
	r.With(s.requireRoles(accessRoles(http.MethodPost, "/api/auth/reset-password"))).Post("/api/auth/reset-password", s.handleResetPassword)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireAuth)

		pr.With(s.rateLimit(auth.RateLimitOTP), s.requireRoles(accessRoles(http.MethodPost, "/api/auth/send-verify-otp"))).Post("/api/auth/send-verify-otp", s.handleSendVerifyOTP)
		pr.With(s.requireRoles(accessRoles(http.MethodPost, "/api/auth/verify-account"))).Post("/api/auth/verify-account", s.handleVerifyAccount)
		pr.With(s.requireRoles(accessRoles(http.MethodGet, "/api/auth/is-auth"))).Get("/api/auth/is-auth", s.handleIsAuth)

		pr.With(s.requireRoles(accessRoles(http.MethodGet, "/api/accounts/{id}")), s.requireSelfOrAdmin("id")).Get("/api/accounts/{id}", s.handleGetAccount)
		pr.With(s.requireRoles(accessRoles(http.MethodPatch, "/api/accounts/{id}")), s.requireSelfOrAdmin("id")).Patch("/api/accounts/{id}", s.handleUpdateAccount)

		pr.With(s.requireRoles(accessRoles(http.MethodGet, "/api/admin/accounts/{id}"))).Get("/api/admin/accounts/{id}", s.handleAdminGetAccount)
		pr.With(s.requireRoles(accessRoles(http.MethodGet, "/api/admin/accounts/{id}/audit"))).Get("/api/admin/accounts/{id}/audit", s.handleAdminAccountAudit)
	})

	return r
}
