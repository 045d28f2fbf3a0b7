package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/bookly/authcore/internal/config"
	"github.com/bookly/authcore/internal/metrics"
)

const defaultTimeout = 5 * time.Second

// Dispatcher bounds every send with a timeout and stops calling a failing
// provider for a while once it trips the circuit breaker.
type Dispatcher struct {
	provider string
	mailer   Mailer
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDispatcher(provider string, mailer Mailer, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		provider: provider,
		mailer:   mailer,
		timeout:  timeout,
		logger:   logger,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "email-" + provider,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("email circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return d
}

// NewFromConfig builds the provider selected by cfg.Provider.
func NewFromConfig(cfg config.EmailConfig, logger *slog.Logger) (*Dispatcher, error) {
	var (
		mailer Mailer
		err    error
	)
	switch cfg.Provider {
	case "", "smtp":
		if !cfg.Enabled() {
			return nil, fmt.Errorf("smtp provider: %w", ErrNotConfigured)
		}
		mailer = NewSMTPSender(cfg)
	case "mailgun":
		mailer, err = NewMailgunSender(MailgunConfig{
			Key:     cfg.MailgunAPIKey,
			Domain:  cfg.MailgunDomain,
			From:    cfg.From,
			APIBase: cfg.MailgunAPIBase,
		})
	case "sendgrid":
		mailer, err = NewSendGridSender(SendGridConfig{Key: cfg.SendGridAPIKey, From: cfg.From})
	case "log":
		if logger == nil {
			logger = slog.Default()
		}
		mailer = LogMailer{Logger: logger}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "smtp"
	}
	return NewDispatcher(provider, mailer, cfg.Timeout, logger), nil
}

func (d *Dispatcher) Provider() string {
	return d.provider
}

func (d *Dispatcher) Send(ctx context.Context, to, subject, html string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.send(ctx, to, subject, html)
	})
	metrics.RecordEmailDispatch(d.provider, err, time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("email provider %s unavailable: %w", d.provider, err)
	}
	if err != nil {
		d.logger.WarnContext(ctx, "email dispatch failed", "provider", d.provider, "error", err)
	}
	return err
}

// send runs the provider call on its own goroutine so a provider that
// ignores ctx still cannot hold the caller past the timeout.
func (d *Dispatcher) send(ctx context.Context, to, subject, html string) error {
	done := make(chan error, 1)
	go func() {
		done <- d.mailer.Send(ctx, to, subject, html)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("email dispatch: %w", ctx.Err())
	}
}
