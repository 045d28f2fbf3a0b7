package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridHost = "https://api.sendgrid.com"

type SendGridConfig struct {
	Key      string
	From     string
	FromName string
	Host     string
}

func validateSendGridConfig(cfg SendGridConfig) error {
	if cfg.Key == "" || cfg.From == "" {
		return errors.New("invalid SendGrid configuration")
	}
	return nil
}

type SendGridSender struct {
	cfg SendGridConfig
}

func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if err := validateSendGridConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Host == "" {
		cfg.Host = sendGridHost
	}
	return &SendGridSender{cfg: cfg}, nil
}

func (s *SendGridSender) Send(ctx context.Context, to, subject, html string) error {
	from := mail.NewEmail(s.cfg.FromName, s.cfg.From)
	message := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), "", html)

	request := sendgrid.GetRequest(s.cfg.Key, "/v3/mail/send", s.cfg.Host)
	request.Method = http.MethodPost
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return err
	}
	if response.StatusCode != http.StatusAccepted {
		return fmt.Errorf("sendgrid: unexpected status code %d", response.StatusCode)
	}
	return nil
}
