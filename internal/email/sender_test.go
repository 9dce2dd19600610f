package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"estate_portal_backend/platform/logger"
	"estate_portal_backend/platform/metrics"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProvider struct {
	got  []Message
	from Address
	err  error
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Deliver(_ context.Context, from Address, m Message) (string, error) {
	p.from = from
	p.got = append(p.got, m)
	if p.err != nil {
		return "", p.err
	}
	return "msg-1", nil
}

func TestProviderSenderDedupesRecipients(t *testing.T) {
	p := &recordingProvider{}
	s := NewProviderSender(p, Address{Name: "CRM", Email: "crm@example.com"}, time.Second)

	res, err := s.Send(context.Background(), Message{
		To:      []string{"a@example.com", " A@example.com ", "", "b@example.com"},
		Subject: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, Result{ID: "msg-1", Provider: "recording"}, res)
	require.Len(t, p.got, 1)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, p.got[0].To)
	assert.Equal(t, "CRM <crm@example.com>", p.from.String())
}

func TestProviderSenderRejectsEmptyRecipients(t *testing.T) {
	p := &recordingProvider{}
	_, err := NewProviderSender(p, Address{Email: "crm@example.com"}, 0).Send(context.Background(), Message{To: []string{" "}})
	assert.ErrorIs(t, err, ErrNoRecipients)
	assert.Empty(t, p.got)
}

func TestBrevoProviderPostsPayload(t *testing.T) {
	var captured brevoEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-123", r.Header.Get("api-key"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@brevo>"}`))
	}))
	defer srv.Close()

	b := NewBrevoProvider("key-123", time.Second)
	b.endpoint = srv.URL

	id, err := b.Deliver(context.Background(), Address{Name: "CRM", Email: "crm@example.com"}, Message{
		To:      []string{"agent@example.com"},
		Subject: "New lead",
		HTML:    "<p>x</p>",
		Trigger: "broadcast_offer",
	})
	require.NoError(t, err)
	assert.Equal(t, "<abc@brevo>", id)
	assert.Equal(t, "crm@example.com", captured.Sender.Email)
	assert.Equal(t, []string{"broadcast_offer"}, captured.Tags)
	require.Len(t, captured.To, 1)
}

func TestBrevoProviderSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := NewBrevoProvider("bad", time.Second)
	b.endpoint = srv.URL
	_, err := b.Deliver(context.Background(), Address{Email: "crm@example.com"}, Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

type fakeSES struct {
	input *sesv2.SendEmailInput
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.input = in
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-42")}, nil
}

func TestSESProviderBuildsSimpleMessage(t *testing.T) {
	api := &fakeSES{}
	p := &SESProvider{client: api}

	id, err := p.Deliver(context.Background(), Address{Name: "CRM", Email: "crm@example.com"}, Message{
		To:      []string{"admin@example.com"},
		Subject: "Breach",
		HTML:    "<p>late</p>",
		Trigger: "claim_breach",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-42", id)
	assert.Equal(t, "CRM <crm@example.com>", aws.ToString(api.input.FromEmailAddress))
	assert.Equal(t, []string{"admin@example.com"}, api.input.Destination.ToAddresses)
	assert.Equal(t, "Breach", aws.ToString(api.input.Content.Simple.Subject.Data))
	require.Len(t, api.input.EmailTags, 1)
}

type fakeSendGrid struct {
	sent     *mail.SGMailV3
	response *rest.Response
}

func (f *fakeSendGrid) SendWithContext(_ context.Context, m *mail.SGMailV3) (*rest.Response, error) {
	f.sent = m
	return f.response, nil
}

func TestSendGridProviderReturnsMessageID(t *testing.T) {
	api := &fakeSendGrid{response: &rest.Response{
		StatusCode: http.StatusAccepted,
		Headers:    map[string][]string{"X-Message-Id": {"sg-7"}},
	}}
	p := &SendGridProvider{client: api}

	id, err := p.Deliver(context.Background(), Address{Email: "crm@example.com"}, Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Alarm",
		HTML:    "<p>now</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-7", id)
	require.Len(t, api.sent.Personalizations, 1)
	assert.Len(t, api.sent.Personalizations[0].To, 2)
}

func TestSendGridProviderRejectsErrorStatus(t *testing.T) {
	api := &fakeSendGrid{response: &rest.Response{StatusCode: http.StatusForbidden, Body: "denied"}}
	_, err := (&SendGridProvider{client: api}).Deliver(context.Background(), Address{Email: "crm@example.com"}, Message{To: []string{"a@example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

type memoryLogStore struct {
	entries []LogEntry
	err     error
}

func (s *memoryLogStore) InsertLog(_ context.Context, e LogEntry) error {
	s.entries = append(s.entries, e)
	return s.err
}

func TestLoggingSenderRecordsOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := &memoryLogStore{}
	leadID := uuid.New()

	ok := NewLoggingSender(NewProviderSender(&recordingProvider{}, Address{Email: "crm@example.com"}, 0), store, m, logger.NewWithWriter("test", io.Discard))
	_, err := ok.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s", LeadID: &leadID, Trigger: "escalation_alarm_1"})
	require.NoError(t, err)

	failing := NewLoggingSender(NewProviderSender(&recordingProvider{err: errors.New("smtp down")}, Address{Email: "crm@example.com"}, 0), store, m, logger.NewWithWriter("test", io.Discard))
	_, err = failing.Send(context.Background(), Message{To: []string{"b@example.com"}, Subject: "s", Trigger: "claim_breach"})
	require.Error(t, err)

	require.Len(t, store.entries, 2)
	assert.Equal(t, StatusSent, store.entries[0].Status)
	assert.Equal(t, "msg-1", store.entries[0].ProviderMessageID)
	assert.Equal(t, &leadID, store.entries[0].LeadID)
	assert.Equal(t, StatusFailed, store.entries[1].Status)
	assert.Contains(t, store.entries[1].Error, "smtp down")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("recording", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmailsSent.WithLabelValues("recording", "failed")))
}

func TestLoggingSenderIgnoresLogStoreFailure(t *testing.T) {
	store := &memoryLogStore{err: errors.New("db gone")}
	s := NewLoggingSender(NewProviderSender(NoopProvider{}, Address{Email: "crm@example.com"}, 0), store, nil, logger.NewWithWriter("test", io.Discard))

	res, err := s.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.NoError(t, err)
	assert.Equal(t, "noop", res.Provider)
}
