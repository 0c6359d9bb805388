package email

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/pawtrack/pawtrack-api/internal/config"
)

// Service sends operational notifications to clinic administrators.
type Service interface {
	SendWebhookDisabledAlert(ctx context.Context, to, endpointName, endpointID string) error
}

type smtpService struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPService creates an email service backed by an SMTP relay.
func NewSMTPService(cfg config.SMTPConfig) Service {
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *smtpService) SendWebhookDisabledAlert(_ context.Context, to, endpointName, endpointID string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("Webhook endpoint %q was disabled", endpointName))
	m.SetBody("text/plain", fmt.Sprintf(
		"The webhook endpoint %q (%s) was automatically disabled after repeated delivery failures.\n\n"+
			"Deliveries to this endpoint are paused until it is re-enabled from the webhook settings page.\n",
		endpointName, endpointID,
	))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send webhook disabled alert: %w", err)
	}
	return nil
}

// NoopService discards all notifications. Used when SMTP is not configured.
type NoopService struct{}

func (NoopService) SendWebhookDisabledAlert(context.Context, string, string, string) error {
	return nil
}
