package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridProvider delivers through the SendGrid v3 mail API.
type SendGridProvider struct {
	client sendGridAPI
}

// NewSendGridProvider creates a SendGrid backend.
func NewSendGridProvider(apiKey string) *SendGridProvider {
	return &SendGridProvider{client: sendgrid.NewSendClient(apiKey)}
}

func (s *SendGridProvider) Name() string { return "sendgrid" }

func (s *SendGridProvider) Deliver(ctx context.Context, from Address, m Message) (string, error) {
	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(from.Name, from.Email))
	message.Subject = m.Subject

	p := mail.NewPersonalization()
	for _, to := range m.To {
		p.AddTos(mail.NewEmail("", to))
	}
	message.AddPersonalizations(p)
	message.AddContent(mail.NewContent("text/html", m.HTML))
	if m.Trigger != "" {
		message.AddCategories(m.Trigger)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return "", fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
