package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultVerifyOTPTTL = 24 * time.Hour
	DefaultResetOTPTTL  = 24 * time.Hour
)

type OTPConfig struct {
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

// OTPManager owns the verify and reset one-time code slots of an account.
type OTPManager struct {
	store     AccountStore
	mailer    Mailer
	templates Templates
	cfg       OTPConfig
	now       func() time.Time
	logger    *slog.Logger
}

func NewOTPManager(store AccountStore, mailer Mailer, templates Templates, cfg OTPConfig, logger *slog.Logger) *OTPManager {
	if cfg.VerifyTTL <= 0 {
		cfg.VerifyTTL = DefaultVerifyOTPTTL
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = DefaultResetOTPTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OTPManager{
		store:     store,
		mailer:    mailer,
		templates: templates,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source used for expiry.
func (m *OTPManager) WithClock(now func() time.Time) *OTPManager {
	m.now = now
	return m
}

func (m *OTPManager) TTL(purpose OTPPurpose) time.Duration {
	if purpose == PurposeReset {
		return m.cfg.ResetTTL
	}
	return m.cfg.VerifyTTL
}

// Issue stores a fresh code for purpose, replacing any pending one, and mails it.
// When the mail cannot be delivered the previous slot is restored and
// ErrDispatchFailure is returned, so no code stays active that the owner never saw.
func (m *OTPManager) Issue(ctx context.Context, account *Account, purpose OTPPurpose, locale string) (string, error) {
	code, err := GenerateOTP()
	if err != nil {
		return "", err
	}

	prior := account.Slot(purpose)
	ttl := m.TTL(purpose)
	slot := OTPSlot{CodeHash: HashString(code), ExpiresAt: m.now().Add(ttl)}

	if err := m.store.UpdateFields(ctx, account.ID, AccountUpdate{}.SetSlot(purpose, slot), nil); err != nil {
		return "", err
	}

	var subject, html string
	if purpose == PurposeReset {
		subject, html = m.templates.ResetOTP(locale, account.Email, code, ttl)
	} else {
		subject, html = m.templates.VerifyOTP(locale, account.Email, code, ttl)
	}

	if sendErr := m.mailer.Send(ctx, account.Email, subject, html); sendErr != nil {
		rollback := AccountUpdate{}.SetSlot(purpose, prior)
		err := m.store.UpdateFields(context.WithoutCancel(ctx), account.ID, rollback, &OTPGuard{Purpose: purpose, CodeHash: slot.CodeHash})
		if err != nil && !errors.Is(err, ErrConcurrentModification) {
			m.logger.ErrorContext(ctx, "otp rollback failed", "account_id", account.ID, "purpose", purpose, "error", err)
		}
		return "", fmt.Errorf("%w: %v", ErrDispatchFailure, sendErr)
	}

	AccountUpdate{}.SetSlot(purpose, slot).Apply(account)
	return code, nil
}

// Consume checks code against the pending slot and, on a match, clears the slot
// and applies dependent in the same conditional write.
func (m *OTPManager) Consume(ctx context.Context, account *Account, purpose OTPPurpose, code string, dependent AccountUpdate) error {
	slot := account.Slot(purpose)
	if !slot.Pending() || code == "" || !equalHashes(slot.CodeHash, HashString(code)) {
		return ErrInvalidCode
	}
	if m.now().After(slot.ExpiresAt) {
		return ErrExpired
	}

	update := dependent.SetSlot(purpose, OTPSlot{})
	err := m.store.UpdateFields(ctx, account.ID, update, &OTPGuard{Purpose: purpose, CodeHash: slot.CodeHash})
	if errors.Is(err, ErrConcurrentModification) {
		return ErrInvalidCode
	}
	if err != nil {
		return err
	}

	update.Apply(account)
	return nil
}
