package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const brevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// BrevoProvider delivers through the Brevo transactional HTTP API.
type BrevoProvider struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmailRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	Tags        []string       `json:"tags,omitempty"`
}

type brevoEmailResponse struct {
	MessageID string `json:"messageId"`
}

// NewBrevoProvider creates a Brevo backend.
func NewBrevoProvider(apiKey string, timeout time.Duration) *BrevoProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BrevoProvider{
		apiKey:   apiKey,
		endpoint: brevoEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (b *BrevoProvider) Name() string { return "brevo" }

func (b *BrevoProvider) Deliver(ctx context.Context, from Address, m Message) (string, error) {
	payload := brevoEmailRequest{
		Sender:      brevoContact{Name: from.Name, Email: from.Email},
		Subject:     m.Subject,
		HTMLContent: m.HTML,
	}
	for _, to := range m.To {
		payload.To = append(payload.To, brevoContact{Email: to})
	}
	if m.Trigger != "" {
		payload.Tags = []string{m.Trigger}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("api-key", b.apiKey)
	req.Header.Set("content-type", "application/json")
	req.Header.Set("accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("brevo send failed: status %d: %s", resp.StatusCode, string(data))
	}

	var out brevoEmailResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("brevo response: %w", err)
	}
	return out.MessageID, nil
}
