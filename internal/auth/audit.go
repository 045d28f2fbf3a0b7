package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	AuditRegister        = "register"
	AuditLoginSuccess    = "login_success"
	AuditLoginFailure    = "login_failure"
	AuditLogout          = "logout"
	AuditVerifyOTPSent   = "verify_otp_sent"
	AuditAccountVerified = "account_verified"
	AuditResetOTPSent    = "reset_otp_sent"
	AuditPasswordReset   = "password_reset"
	AuditRateLimited     = "rate_limited"
)

type AuditEvent struct {
	EventType string                 `json:"eventType"`
	AccountID string                 `json:"accountId,omitempty"`
	IP        string                 `json:"ip"`
	UserAgent string                 `json:"userAgent"`
	Timestamp time.Time              `json:"timestamp"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

type AuditLogger struct {
	Redis  *redis.Client
	MaxLen int64
}

func auditKey(accountID string) string {
	if accountID == "" {
		return "audit"
	}
	return "audit:" + accountID
}

func (a *AuditLogger) Log(ctx context.Context, e AuditEvent) error {
	e.Timestamp = time.Now().UTC()
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	key := auditKey(e.AccountID)
	pipe := a.Redis.Pipeline()
	pipe.RPush(ctx, key, data)
	if a.MaxLen > 0 {
		pipe.LTrim(ctx, key, -a.MaxLen, -1)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to n of the newest events for accountID, oldest first.
func (a *AuditLogger) Recent(ctx context.Context, accountID string, n int64) ([]AuditEvent, error) {
	if n <= 0 {
		n = 50
	}
	raw, err := a.Redis.LRange(ctx, auditKey(accountID), -n, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]AuditEvent, 0, len(raw))
	for _, item := range raw {
		var e AuditEvent
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
