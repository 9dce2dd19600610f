package escalation

import (
	"context"
	"errors"
	"fmt"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/email"
	"estate_portal_backend/internal/notification/inapp"

	"github.com/google/uuid"
)

// Email trigger reasons recorded in the email log.
const (
	TriggerBroadcastOffer = "broadcast_offer"
	TriggerDirectAssigned = "direct_assignment"
	TriggerClaimBreach    = "claim_breach"
	TriggerContactBreach  = "contact_breach"
	TriggerReassigned     = "reassignment"
)

func alarmTrigger(level domain.AlarmLevel) string {
	return fmt.Sprintf("escalation_alarm_%d", level)
}

// NotifyBroadcast offers a freshly broadcast lead to the whole pool at once.
func (s *Service) NotifyBroadcast(ctx context.Context, lead domain.Lead, pool []domain.Agent) error {
	if lead.ClaimTimerExpiresAt == nil {
		return errors.New("broadcast lead has no claim deadline")
	}
	rendered, err := email.RenderBroadcastOffer(email.BroadcastOffer{
		Lead:          summarize(lead),
		ClaimURL:      s.claimURL(lead.ID),
		ClaimDeadline: *lead.ClaimTimerExpiresAt,
	})
	if err != nil {
		return err
	}

	leadID := lead.ID
	_, sendErr := s.sender.Send(ctx, email.Message{
		To:      poolEmails(pool),
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  &leadID,
		Trigger: TriggerBroadcastOffer,
	})

	for _, agent := range pool {
		s.notifyAgent(ctx, agent.ID, lead.ID, inapp.KindBroadcastOffer,
			"New "+lead.Language+" lead available",
			"Claim it before "+lead.ClaimTimerExpiresAt.UTC().Format("15:04 MST")+".")
	}
	return sendErr
}

// NotifyDirectAssignment tells the chosen agent their contact timer is running.
func (s *Service) NotifyDirectAssignment(ctx context.Context, lead domain.Lead, agent domain.Agent) error {
	deadline := s.clock.Now().Add(s.policy.ContactWindow)
	if lead.ContactTimerExpiresAt != nil {
		deadline = *lead.ContactTimerExpiresAt
	}
	rendered, err := email.RenderDirectAssignment(email.DirectAssignment{
		Lead:            summarize(lead),
		AgentName:       agent.DisplayName(),
		ContactDeadline: deadline,
		LeadURL:         s.leadURL(lead.ID),
	})
	if err != nil {
		return err
	}

	leadID, agentID := lead.ID, agent.ID
	_, sendErr := s.sender.Send(ctx, email.Message{
		To:      []string{agent.Email},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  &leadID,
		AgentID: &agentID,
		Trigger: TriggerDirectAssigned,
	})
	s.notifyAgent(ctx, agent.ID, lead.ID, inapp.KindAssigned, "New lead assigned to you", rendered.Subject)
	return sendErr
}

// NotifyClaimBreach tells the fallback admin that nobody claimed the lead.
func (s *Service) NotifyClaimBreach(ctx context.Context, lead domain.Lead) error {
	adm, err := s.resolveAdmin(ctx, lead.Language)
	if err != nil {
		s.log.Error("claim breach has no admin recipient", "leadId", lead.ID, "language", lead.Language, "error", err)
		return err
	}

	poolSize := 0
	if cfg, cfgErr := s.repo.GetRoundRobinConfig(ctx, lead.Language); cfgErr == nil {
		poolSize = len(cfg.AgentIDs)
	}

	rendered, err := email.RenderClaimBreach(email.ClaimBreachNotice{
		Lead:          summarize(lead),
		AdminName:     adm.Name,
		WindowMinutes: minutes(s.policy.ClaimWindow),
		PoolSize:      poolSize,
		ReassignURL:   s.reassignURL(lead.ID),
	})
	if err != nil {
		return err
	}

	leadID := lead.ID
	_, sendErr := s.sender.Send(ctx, email.Message{
		To:      []string{adm.Email},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  &leadID,
		AgentID: adm.ID,
		Trigger: TriggerClaimBreach,
	})
	if adm.ID != nil {
		s.notifyAgent(ctx, *adm.ID, lead.ID, inapp.KindClaimBreach, "Lead unclaimed", rendered.Subject)
	}
	return sendErr
}

// NotifyReassigned emails the new owner. Only the email lives here; the
// reassignment engine writes its own in-app notification.
func (s *Service) NotifyReassigned(ctx context.Context, lead domain.Lead, agent domain.Agent, reason domain.ReassignReason, notes string) error {
	rendered, err := email.RenderReassignment(email.ReassignmentNotice{
		Lead:                 summarize(lead),
		AgentName:            agent.DisplayName(),
		Reason:               reason.Label(),
		Notes:                notes,
		StartsContactTimer:   reason.StartsContactTimer(),
		ContactWindowMinutes: minutes(s.policy.ContactWindow),
		LeadURL:              s.leadURL(lead.ID),
	})
	if err != nil {
		return err
	}

	leadID, agentID := lead.ID, agent.ID
	_, err = s.sender.Send(ctx, email.Message{
		To:      []string{agent.Email},
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  &leadID,
		AgentID: &agentID,
		Trigger: TriggerReassigned,
	})
	return err
}

func uuidPtr(id uuid.UUID) *uuid.UUID { return &id }
