// Package email sends CRM alert emails through a configurable provider and
// records every attempt in the email log.
package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"estate_portal_backend/platform/config"

	"github.com/google/uuid"
)

// Message is one outbound email. Lead, Agent and Trigger only feed the
// email log and never reach the provider.
type Message struct {
	To      []string
	Subject string
	HTML    string

	LeadID  *uuid.UUID
	AgentID *uuid.UUID
	Trigger string
}

// Result is the provider's acceptance of a message.
type Result struct {
	ID       string
	Provider string
}

// Sender delivers a message. A nil error means the provider accepted it.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// Provider is a single delivery backend.
type Provider interface {
	Name() string
	Deliver(ctx context.Context, from Address, msg Message) (string, error)
}

// Address is a display name plus mailbox.
type Address struct {
	Name  string
	Email string
}

func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// ErrNoRecipients is returned for a message without any usable address.
var ErrNoRecipients = errors.New("email has no recipients")

// ProviderSender adapts a Provider to Sender, applying the sender address
// and a per-call timeout.
type ProviderSender struct {
	provider Provider
	from     Address
	timeout  time.Duration
}

// NewProviderSender wraps provider.
func NewProviderSender(provider Provider, from Address, timeout time.Duration) *ProviderSender {
	return &ProviderSender{provider: provider, from: from, timeout: timeout}
}

// Send validates recipients and delivers within the configured timeout.
func (s *ProviderSender) Send(ctx context.Context, msg Message) (Result, error) {
	msg.To = cleanRecipients(msg.To)
	if len(msg.To) == 0 {
		return Result{Provider: s.provider.Name()}, ErrNoRecipients
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	id, err := s.provider.Deliver(ctx, s.from, msg)
	if err != nil {
		return Result{Provider: s.provider.Name()}, fmt.Errorf("%s: %w", s.provider.Name(), err)
	}
	return Result{ID: id, Provider: s.provider.Name()}, nil
}

func cleanRecipients(to []string) []string {
	seen := make(map[string]bool, len(to))
	out := make([]string, 0, len(to))
	for _, addr := range to {
		addr = strings.TrimSpace(addr)
		key := strings.ToLower(addr)
		if addr == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, addr)
	}
	return out
}

// NewProvider builds the backend selected by EMAIL_PROVIDER.
func NewProvider(ctx context.Context, cfg config.EmailConfig) (Provider, error) {
	switch cfg.GetEmailProvider() {
	case config.EmailProviderNoop, "":
		return NoopProvider{}, nil
	case config.EmailProviderSMTP:
		return NewSMTPProvider(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailTimeout()), nil
	case config.EmailProviderBrevo:
		return NewBrevoProvider(cfg.GetBrevoAPIKey(), cfg.GetEmailTimeout()), nil
	case config.EmailProviderSES:
		return NewSESProvider(ctx, cfg.GetAWSRegion(), cfg.GetAWSAccessKeyID(), cfg.GetAWSSecretAccessKey())
	case config.EmailProviderSendGrid:
		return NewSendGridProvider(cfg.GetSendGridAPIKey()), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.GetEmailProvider())
	}
}

// NoopProvider accepts every message without sending it.
type NoopProvider struct{}

func (NoopProvider) Name() string { return config.EmailProviderNoop }

func (NoopProvider) Deliver(context.Context, Address, Message) (string, error) {
	return "noop-" + uuid.NewString(), nil
}
