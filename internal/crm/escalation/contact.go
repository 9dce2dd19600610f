package escalation

import (
	"context"
	"fmt"
	"time"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/events"
	"estate_portal_backend/internal/notification/inapp"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	SweepContactWindow = "contact_window"
	actionContact      = "contact_breach"
	skipAlreadyMarked  = "breach already recorded"
)

// CheckContactWindowExpiry flags claimed leads whose agent never logged a
// first contact and sends the admin a single notice per lead. There is no
// ladder and no automatic reassignment.
func (s *Service) CheckContactWindowExpiry(ctx context.Context) (domain.SweepReport, error) {
	started := time.Now()
	now := s.clock.Now()

	due, err := s.repo.ListContactBreaches(ctx, now, s.settings.BatchSize)
	if err != nil {
		s.log.Error("contact window sweep aborted", "error", err)
		return domain.SweepReport{}, err
	}

	var collector domain.SweepCollector
	var g errgroup.Group
	g.SetLimit(s.settings.Concurrency)
	for _, lead := range due {
		g.Go(func() error {
			collector.Add(s.handleContactBreach(ctx, lead, now))
			return nil
		})
	}
	_ = g.Wait()

	report := collector.Report()
	elapsed := time.Since(started)
	s.metrics.RecordSweep(SweepContactWindow, elapsed, report.Errors)
	s.log.SweepCompleted(SweepContactWindow, report.Processed, report.Errors, float64(elapsed.Milliseconds()))
	return report, nil
}

func (s *Service) handleContactBreach(ctx context.Context, lead domain.Lead, now time.Time) domain.SweepItem {
	item := domain.SweepItem{LeadID: lead.ID, Action: actionContact}

	marked, err := s.repo.MarkContactBreached(ctx, lead.ID, now)
	if err != nil {
		s.log.Warn("mark contact breach failed", "leadId", lead.ID, "error", err)
		item.Error = err.Error()
		return item
	}
	if !marked {
		item.Skipped = true
		item.Error = skipAlreadyMarked
		return item
	}
	s.metrics.RecordBreach(string(domain.BreachContact))

	agentName, agentEmail := "Unknown agent", ""
	if lead.AssignedAgentID != nil {
		if agent, getErr := s.repo.GetAgent(ctx, *lead.AssignedAgentID); getErr == nil {
			agentName, agentEmail = agent.DisplayName(), agent.Email
		} else {
			s.log.Warn("assigned agent lookup failed", "leadId", lead.ID, "agentId", *lead.AssignedAgentID, "error", getErr)
		}
	}

	s.addActivity(ctx, domain.Activity{
		LeadID:  lead.ID,
		ActorID: lead.AssignedAgentID,
		Action:  domain.ActivityContactBreached,
		Note:    fmt.Sprintf("%s claimed the lead but did not log a first contact in time", agentName),
		Metadata: map[string]any{
			"contactExpiresAt": lead.ContactTimerExpiresAt,
		},
		CreatedAt: now,
	})

	adm, err := s.resolveAdmin(ctx, lead.Language)
	if err != nil {
		s.log.Error("contact breach has no admin recipient", "leadId", lead.ID, "language", lead.Language, "error", err)
		item.Error = err.Error()
		s.publishBreach(ctx, lead, domain.BreachContact, nil, now)
		return item
	}
	s.publishBreach(ctx, lead, domain.BreachContact, adm.ID, now)

	claimedAt := now
	if lead.AssignedAt != nil {
		claimedAt = *lead.AssignedAt
	}
	rendered, err := email.RenderContactBreach(email.ContactBreachNotice{
		Lead:        summarize(lead),
		AdminName:   adm.Name,
		AgentName:   agentName,
		AgentEmail:  agentEmail,
		ClaimedAt:   claimedAt,
		ReassignURL: s.reassignURL(lead.ID),
	})
	if err != nil {
		item.Error = err.Error()
		return item
	}

	if adm.ID != nil {
		s.notifyAgent(ctx, *adm.ID, lead.ID, inapp.KindContactBreach, "Agent claimed but didn't call", rendered.Subject)
	}
	if _, err := s.sender.Send(ctx, email.Message{
		To:      []string{adm.Email},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  uuidPtr(lead.ID),
		AgentID: adm.ID,
		Trigger: TriggerContactBreach,
	}); err != nil {
		s.log.Warn("contact breach notice failed", "leadId", lead.ID, "error", err)
		s.addActivity(ctx, domain.Activity{
			LeadID:    lead.ID,
			Action:    domain.ActivityNoticeFailed,
			Note:      "Contact breach email to " + adm.Email + " was not delivered",
			Metadata:  map[string]any{"trigger": TriggerContactBreach, "error": err.Error()},
			CreatedAt: now,
		})
		item.Error = err.Error()
		return item
	}

	item.Success = true
	return item
}

func (s *Service) publishBreach(ctx context.Context, lead domain.Lead, kind domain.BreachKind, adminID *uuid.UUID, now time.Time) {
	s.bus.Publish(ctx, events.SLABreached{
		BaseEvent: events.NewBaseEventAt(now),
		LeadID:    lead.ID,
		Kind:      string(kind),
		AgentID:   lead.AssignedAgentID,
		AdminID:   adminID,
	})
}
