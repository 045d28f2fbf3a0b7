package server

import (
	"net/http"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/i18n"
	"github.com/bookly/authcore/internal/metrics"
)

type registerRequest struct {
	Name          *string    `json:"name"`
	Email         string     `json:"email"`
	Password      string     `json:"password"`
	Phone         flexString `json:"phone"`
	Age           flexString `json:"age"`
	ElevationCode string     `json:"elevationCode"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.Accounts.Register(r.Context(), auth.RegisterInput{
		Email:         req.Email,
		Password:      req.Password,
		Phone:         string(req.Phone),
		Age:           string(req.Age),
		Name:          req.Name,
		ElevationCode: req.ElevationCode,
		Locale:        i18n.LocaleFromRequest(r),
	})
	metrics.RecordAuthEvent("register", outcome(err))
	if err != nil {
		s.writeServiceError(w, r, "register", err)
		return
	}

	s.audit(r, auth.AuditRegister, res.Account.ID, map[string]interface{}{
		"role":             string(res.Account.Role),
		"verificationSent": res.VerificationSent,
	})
	auth.SetSessionCookie(w, s.cookies, res.Token)

	message := "Registration successful! Please check your email for the verification code."
	if !res.VerificationSent {
		message = "Registration successful, but the verification email could not be sent. Please request a new code."
	}
	writeSuccess(w, map[string]interface{}{
		"userId":           res.Account.ID,
		"message":          message,
		"verificationSent": res.VerificationSent,
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.Accounts.Login(r.Context(), req.Email, req.Password)
	metrics.RecordAuthEvent("login", outcome(err))
	if err != nil {
		s.audit(r, auth.AuditLoginFailure, "", map[string]interface{}{"reason": err.Error()})
		s.writeServiceError(w, r, "login", err)
		return
	}

	s.audit(r, auth.AuditLoginSuccess, res.Account.ID, nil)
	auth.SetSessionCookie(w, s.cookies, res.Token)
	writeSuccess(w, map[string]interface{}{
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	})
}

// handleLogout clears the cookie. Tokens are stateless, so nothing changes
// server side.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if token := extractToken(r); token != "" {
		if account, err := s.Accounts.IsAuthenticated(r.Context(), token); err == nil {
			s.audit(r, auth.AuditLogout, account.ID, nil)
		}
	}
	auth.ClearSessionCookie(w, s.cookies)
	writeSuccess(w, map[string]interface{}{"message": "Logged Out"})
}

func (s *Server) handleIsAuth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{"user": accountFromContext(r.Context())})
}
