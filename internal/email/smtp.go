package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"
)

// SMTPProvider delivers through an SMTP relay via go-mail.
type SMTPProvider struct {
	host     string
	port     int
	username string
	password string
	timeout  time.Duration
}

// NewSMTPProvider creates an SMTP backend.
func NewSMTPProvider(host string, port int, username, password string, timeout time.Duration) *SMTPProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SMTPProvider{
		host:     host,
		port:     port,
		username: username,
		password: password,
		timeout:  timeout,
	}
}

func (s *SMTPProvider) Name() string { return "smtp" }

func (s *SMTPProvider) Deliver(ctx context.Context, from Address, m Message) (string, error) {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(from.Name, from.Email); err != nil {
		return "", fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(m.To...); err != nil {
		return "", fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(m.Subject)
	msg.SetMessageID()
	msg.SetBodyString(gomail.TypeTextHTML, m.HTML)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.timeout),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return "", fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return "", fmt.Errorf("smtp send: %w", err)
	}

	if ids := msg.GetGenHeader(gomail.HeaderMessageID); len(ids) > 0 {
		return ids[0], nil
	}
	return "", nil
}
