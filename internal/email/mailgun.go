package email

import (
	"context"
	"errors"

	"github.com/mailgun/mailgun-go/v4"
)

type MailgunConfig struct {
	Key     string
	Domain  string
	From    string
	APIBase string
}

func validateMailgunConfig(cfg MailgunConfig) error {
	if cfg.Key == "" || cfg.Domain == "" || cfg.From == "" {
		return errors.New("invalid Mailgun configuration")
	}
	return nil
}

type MailgunSender struct {
	mg   *mailgun.MailgunImpl
	from string
}

func NewMailgunSender(cfg MailgunConfig) (*MailgunSender, error) {
	if err := validateMailgunConfig(cfg); err != nil {
		return nil, err
	}
	mg := mailgun.NewMailgun(cfg.Domain, cfg.Key)
	if cfg.APIBase != "" {
		mg.SetAPIBase(cfg.APIBase)
	}
	return &MailgunSender{mg: mg, from: cfg.From}, nil
}

func (s *MailgunSender) Send(ctx context.Context, to, subject, html string) error {
	message := s.mg.NewMessage(s.from, subject, "", to)
	message.SetHtml(html)

	_, _, err := s.mg.Send(ctx, message)
	return err
}
