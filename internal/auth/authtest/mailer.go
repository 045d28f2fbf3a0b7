package authtest

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type SentMail struct {
	To      string
	Subject string
	HTML    string
}

// RecordingMailer records every message. FailSubjects makes sends with a
// matching subject fail, FailAll fails everything.
type RecordingMailer struct {
	mu           sync.Mutex
	Sent         []SentMail
	FailAll      bool
	FailSubjects map[string]bool
}

func (m *RecordingMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailAll || m.FailSubjects[subject] {
		return fmt.Errorf("smtp: delivery to %s refused", to)
	}
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *RecordingMailer) Messages() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMail, len(m.Sent))
	copy(out, m.Sent)
	return out
}

const (
	VerifySubject  = "verify"
	ResetSubject   = "reset"
	WelcomeSubject = "welcome"
)

// PlainTemplates renders bodies that are easy to assert on: the OTP body is
// the bare code.
type PlainTemplates struct{}

func (PlainTemplates) VerifyOTP(_, _, code string, _ time.Duration) (string, string) {
	return VerifySubject, code
}

func (PlainTemplates) ResetOTP(_, _, code string, _ time.Duration) (string, string) {
	return ResetSubject, code
}

func (PlainTemplates) Welcome(_, name, email, phone string) (string, string) {
	return WelcomeSubject, fmt.Sprintf("%s|%s|%s", name, email, phone)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
