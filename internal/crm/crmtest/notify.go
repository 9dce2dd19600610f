package crmtest

import (
	"context"
	"errors"
	"slices"
	"sync"

	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

// Outbox is an email.Sender that records messages. Recipients listed in
// FailFor make the whole send fail.
type Outbox struct {
	mu      sync.Mutex
	sent    []email.Message
	failFor map[string]bool
}

var _ email.Sender = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{failFor: make(map[string]bool)}
}

// FailFor makes sends that include addr fail.
func (o *Outbox) FailFor(addr string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failFor[addr] = true
}

// Recover clears every configured failure.
func (o *Outbox) Recover() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failFor = make(map[string]bool)
}

func (o *Outbox) Send(_ context.Context, msg email.Message) (email.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, to := range msg.To {
		if o.failFor[to] {
			return email.Result{Provider: "outbox"}, errors.New("provider rejected " + to)
		}
	}
	o.sent = append(o.sent, msg)
	return email.Result{ID: uuid.NewString(), Provider: "outbox"}, nil
}

// Sent returns delivered messages, optionally filtered by trigger.
func (o *Outbox) Sent(trigger string) []email.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]email.Message, 0, len(o.sent))
	for _, m := range o.sent {
		if trigger == "" || m.Trigger == trigger {
			out = append(out, m)
		}
	}
	return out
}

// InApp records in-app notifications and read marks.
type InApp struct {
	mu       sync.Mutex
	created  []inapp.Notification
	readMark map[[2]uuid.UUID]int
	Err      error
}

func NewInApp() *InApp {
	return &InApp{readMark: make(map[[2]uuid.UUID]int)}
}

func (n *InApp) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return inapp.Notification{}, n.Err
	}
	notif := inapp.Notification{ID: uuid.New(), AgentID: p.AgentID, LeadID: p.LeadID, Kind: p.Kind, Title: p.Title, Content: p.Content}
	n.created = append(n.created, notif)
	return notif, nil
}

func (n *InApp) MarkReadByLead(_ context.Context, agentID, leadID uuid.UUID) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return 0, n.Err
	}
	n.readMark[[2]uuid.UUID{agentID, leadID}]++
	return 1, nil
}

// For returns the notifications of one kind sent to agentID.
func (n *InApp) For(agentID uuid.UUID, kind string) []inapp.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []inapp.Notification
	for _, c := range n.created {
		if c.AgentID == agentID && (kind == "" || c.Kind == kind) {
			out = append(out, c)
		}
	}
	return out
}

// ReadMarks counts MarkReadByLead calls for the pair.
func (n *InApp) ReadMarks(agentID, leadID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.readMark[[2]uuid.UUID{agentID, leadID}]
}

// Bus is a synchronous events.Bus that keeps every published event.
type Bus struct {
	mu     sync.Mutex
	events []events.Event
}

var _ events.Bus = (*Bus)(nil)

func (b *Bus) Publish(_ context.Context, e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

func (b *Bus) PublishSync(ctx context.Context, e events.Event) error {
	b.Publish(ctx, e)
	return nil
}

func (b *Bus) Subscribe(string, events.Handler) {}

// Named returns the published events with the given name.
func (b *Bus) Named(name string) []events.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.DeleteFunc(slices.Clone(b.events), func(e events.Event) bool { return e.EventName() != name })
}
