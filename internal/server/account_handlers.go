package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/logging"
)

const (
	healthTimeout     = 2 * time.Second
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.Accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeServiceError(w, r, "get account", err)
		return
	}
	writeSuccess(w, map[string]interface{}{"user": account})
}

type updateAccountRequest struct {
	Name  *string     `json:"name"`
	Phone *flexString `json:"phone"`
	Age   flexInt     `json:"age"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req updateAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	update := auth.ProfileUpdate{Name: req.Name, Age: req.Age.value}
	if req.Phone != nil {
		phone := string(*req.Phone)
		update.Phone = &phone
	}

	account, err := s.Accounts.UpdateProfile(r.Context(), chi.URLParam(r, "id"), update)
	if err != nil {
		s.writeServiceError(w, r, "update account", err)
		return
	}
	writeSuccess(w, map[string]interface{}{"user": account})
}

func (s *Server) handleAdminGetAccount(w http.ResponseWriter, r *http.Request) {
	s.handleGetAccount(w, r)
}

func (s *Server) handleAdminAccountAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusNotFound, "Audit log is not enabled")
		return
	}
	limit := int64(defaultAuditLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = min(n, maxAuditLimit)
	}

	events, err := s.Audit.Recent(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		logging.LogError(r.Context(), s.Logger, "read audit events failed", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong, please try again later")
		return
	}
	writeSuccess(w, map[string]interface{}{"events": events})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.Checks))
	for name, check := range s.Checks {
		if err := check(ctx); err != nil {
			s.Logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "unavailable"
	}
	writeJSON(w, status, map[string]interface{}{"status": overall, "checks": checks})
}
