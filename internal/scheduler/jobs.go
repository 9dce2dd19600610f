package scheduler

import (
	"context"

	"estate_portal_backend/internal/crm"
	"estate_portal_backend/internal/crm/domain"

	"github.com/google/uuid"
)

// SweepFunc runs one batch sweep and returns its report.
type SweepFunc func(ctx context.Context) (domain.SweepReport, error)

// Jobs binds task types to the CRM operations they run.
type Jobs struct {
	EscalationAlarms SweepFunc
	ClaimBreaches    SweepFunc
	ContactWindow    SweepFunc
	RouteLead        func(ctx context.Context, leadID uuid.UUID) error
}

// JobsFromCRM wires the jobs to a built CRM module.
func JobsFromCRM(m *crm.Module) Jobs {
	return Jobs{
		EscalationAlarms: m.Escalation().SendEscalatingAlarms,
		ClaimBreaches:    m.Timers().CheckClaimBreaches,
		ContactWindow:    m.Escalation().CheckContactWindowExpiry,
		RouteLead: func(ctx context.Context, leadID uuid.UUID) error {
			_, err := m.Routing().RouteLead(ctx, leadID)
			return err
		},
	}
}

func (j Jobs) sweep(taskType string) SweepFunc {
	switch taskType {
	case TaskEscalationAlarms:
		return j.EscalationAlarms
	case TaskClaimBreaches:
		return j.ClaimBreaches
	case TaskContactWindow:
		return j.ContactWindow
	}
	return nil
}

// sweepTasks is the fixed order sweeps are registered and run in.
var sweepTasks = []string{TaskEscalationAlarms, TaskClaimBreaches, TaskContactWindow}
