package server

import (
	"net/http"

	"github.com/bookly/authcore/internal/auth"
	"github.com/bookly/authcore/internal/i18n"
	"github.com/bookly/authcore/internal/metrics"
)

func (s *Server) handleSendVerifyOTP(w http.ResponseWriter, r *http.Request) {
	account := accountFromContext(r.Context())

	err := s.Accounts.SendVerifyOTP(r.Context(), account.ID, i18n.LocaleFromRequest(r))
	metrics.RecordAuthEvent("send_verify_otp", outcome(err))
	if err != nil {
		s.writeServiceError(w, r, "send verify otp", err)
		return
	}

	s.audit(r, auth.AuditVerifyOTPSent, account.ID, nil)
	writeSuccess(w, map[string]interface{}{"message": "Verification OTP sent on email"})
}

type verifyAccountRequest struct {
	OTP flexString `json:"otp"`
}

func (s *Server) handleVerifyAccount(w http.ResponseWriter, r *http.Request) {
	var req verifyAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	account := accountFromContext(r.Context())

	err := s.Accounts.VerifyAccount(r.Context(), account.ID, string(req.OTP))
	metrics.RecordAuthEvent("verify_account", outcome(err))
	if err != nil {
		s.writeServiceError(w, r, "verify account", err)
		return
	}

	s.audit(r, auth.AuditAccountVerified, account.ID, nil)
	writeSuccess(w, map[string]interface{}{"message": "Email verified successfully"})
}

type sendResetOTPRequest struct {
	Email string `json:"email"`
}

// handleSendResetOTP answers the same way whether or not the email belongs
// to an account.
func (s *Server) handleSendResetOTP(w http.ResponseWriter, r *http.Request) {
	var req sendResetOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.Accounts.SendResetOTP(r.Context(), req.Email, i18n.LocaleFromRequest(r))
	metrics.RecordAuthEvent("send_reset_otp", outcome(err))
	if err != nil {
		s.writeServiceError(w, r, "send reset otp", err)
		return
	}

	s.audit(r, auth.AuditResetOTPSent, "", map[string]interface{}{"email": auth.HashString(auth.NormalizeEmail(req.Email))})
	writeSuccess(w, map[string]interface{}{"message": "If the email is registered, a reset OTP has been sent"})
}

type resetPasswordRequest struct {
	Email       string     `json:"email"`
	OTP         flexString `json:"otp"`
	NewPassword string     `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.Accounts.ResetPassword(r.Context(), auth.ResetPasswordInput{
		Email:       req.Email,
		OTP:         string(req.OTP),
		NewPassword: req.NewPassword,
	})
	metrics.RecordAuthEvent("reset_password", outcome(err))
	if err != nil {
		s.writeServiceError(w, r, "reset password", err)
		return
	}

	s.audit(r, auth.AuditPasswordReset, "", map[string]interface{}{"email": auth.HashString(auth.NormalizeEmail(req.Email))})
	writeSuccess(w, map[string]interface{}{"message": "Password has been reset successfully"})
}
