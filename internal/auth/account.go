package auth

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// OTPPurpose selects one of the two independent OTP slots on an account.
type OTPPurpose string

const (
	PurposeVerify OTPPurpose = "verify"
	PurposeReset  OTPPurpose = "reset"
)

// OTPSlot holds a pending one-time code. The zero value means no code is pending.
type OTPSlot struct {
	CodeHash  string
	ExpiresAt time.Time
}

func (s OTPSlot) Pending() bool {
	return s.CodeHash != "" && !s.ExpiresAt.IsZero()
}

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         *string   `json:"name,omitempty"`
	Phone        string    `json:"phone"`
	Age          int       `json:"age"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	VerifyOTP    OTPSlot   `json:"-"`
	ResetOTP     OTPSlot   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (a *Account) Slot(purpose OTPPurpose) OTPSlot {
	if purpose == PurposeReset {
		return a.ResetOTP
	}
	return a.VerifyOTP
}

func (a *Account) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Sanitized returns a copy without the password hash or pending codes.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	out.VerifyOTP = OTPSlot{}
	out.ResetOTP = OTPSlot{}
	return &out
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
