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
	SweepEscalation  = "escalation_alarms"
	actionAlarm      = "escalation_alarm"
	skipStateChanged = "lead changed before the level advanced"
)

// SendEscalatingAlarms fires at most one ladder level per unclaimed lead.
// Levels are scanned from the highest down and a lead handled at one level
// is not reconsidered at a lower one, so a lead never climbs more than one
// rung per call. The email goes out before the level advances, which makes
// delivery at-least-once.
func (s *Service) SendEscalatingAlarms(ctx context.Context) (domain.SweepReport, error) {
	started := time.Now()
	now := s.clock.Now()

	pools, agents, err := s.loadSnapshot(ctx)
	if err != nil {
		s.log.Error("escalation sweep aborted", "error", err)
		return domain.SweepReport{}, err
	}

	var collector domain.SweepCollector
	seen := make(map[uuid.UUID]bool)

	levels := domain.LadderLevels()
	for i := len(levels) - 1; i >= 0; i-- {
		level := levels[i]
		due, err := s.repo.ListAlarmDue(ctx, level, s.policy.AlarmThreshold(level, now), s.settings.BatchSize)
		if err != nil {
			s.log.Error("list alarm candidates failed", "level", int(level), "error", err)
			collector.Fail(uuid.Nil, actionAlarm, int(level), err)
			continue
		}

		var g errgroup.Group
		g.SetLimit(s.settings.Concurrency)
		for _, lead := range due {
			if seen[lead.ID] {
				continue
			}
			seen[lead.ID] = true
			g.Go(func() error {
				collector.Add(s.fireAlarm(ctx, lead, level, now, pools, agents))
				return nil
			})
		}
		_ = g.Wait()
	}

	report := collector.Report()
	elapsed := time.Since(started)
	s.metrics.RecordSweep(SweepEscalation, elapsed, report.Errors)
	s.log.SweepCompleted(SweepEscalation, report.Processed, report.Errors, float64(elapsed.Milliseconds()))
	return report, nil
}

func (s *Service) fireAlarm(
	ctx context.Context,
	lead domain.Lead,
	level domain.AlarmLevel,
	now time.Time,
	pools map[string]domain.RoundRobinConfig,
	agents map[uuid.UUID]domain.Agent,
) domain.SweepItem {
	item := domain.SweepItem{LeadID: lead.ID, Action: actionAlarm, Level: int(level)}
	fail := func(err error) domain.SweepItem {
		s.metrics.RecordAlarm(int(level), false)
		s.log.Warn("escalation alarm failed", "leadId", lead.ID, "level", int(level), "error", err)
		item.Error = err.Error()
		return item
	}

	pool, err := activePool(pools, agents, lead.Language)
	if err != nil {
		s.log.Error("escalation pool misconfigured", "leadId", lead.ID, "language", lead.Language, "error", err)
		return fail(err)
	}

	rendered, err := email.RenderEscalationAlarm(email.EscalationAlarm{
		Lead:           summarize(lead),
		Level:          int(level),
		MinutesWaiting: minutes(time.Duration(level) * s.policy.AlarmInterval),
		ClaimURL:       s.claimURL(lead.ID),
	})
	if err != nil {
		return fail(err)
	}

	if _, err := s.sender.Send(ctx, email.Message{
		To:      poolEmails(pool),
		Subject: rendered.Subject,
		HTML:    rendered.HTML,
		LeadID:  uuidPtr(lead.ID),
		Trigger: alarmTrigger(level),
	}); err != nil {
		return fail(err)
	}

	advanced, err := s.repo.AdvanceAlarmLevel(ctx, lead.ID, level-1, level, now)
	if err != nil {
		return fail(fmt.Errorf("alarm sent but level not recorded: %w", err))
	}
	if !advanced {
		item.Skipped = true
		item.Error = skipStateChanged
		return item
	}

	s.addActivity(ctx, domain.Activity{
		LeadID: lead.ID,
		Action: domain.ActivityEscalationAlarm,
		Note:   fmt.Sprintf("Escalation alarm level %d sent to %d agents", level, len(pool)),
		Metadata: map[string]any{
			"level":      int(level),
			"recipients": poolEmails(pool),
		},
		CreatedAt: now,
	})
	for _, agent := range pool {
		s.notifyAgent(ctx, agent.ID, lead.ID, inapp.KindEscalation, rendered.Subject, "Claim the lead before it goes to an admin.")
	}
	s.bus.Publish(ctx, events.EscalationAlarmSent{
		BaseEvent:    events.NewBaseEventAt(now),
		LeadID:       lead.ID,
		Level:        int(level),
		PoolAgentIDs: poolIDs(pool),
	})
	s.metrics.RecordAlarm(int(level), true)

	item.Success = true
	return item
}
