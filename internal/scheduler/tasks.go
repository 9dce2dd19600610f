package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TaskEscalationAlarms = "crm.escalation.alarms"

const TaskClaimBreaches = "crm.claim.breaches"

const TaskContactWindow = "crm.contact.window"

const TaskLeadRoute = "crm.lead.route"

// LeadRoutePayload identifies a lead whose synchronous routing failed.
type LeadRoutePayload struct {
	LeadID string `json:"leadId"`
}

// NewSweepTask builds a payload-free periodic sweep task.
func NewSweepTask(taskType string) (*asynq.Task, error) {
	switch taskType {
	case TaskEscalationAlarms, TaskClaimBreaches, TaskContactWindow:
		return asynq.NewTask(taskType, nil), nil
	default:
		return nil, fmt.Errorf("unknown sweep task %q", taskType)
	}
}

func NewLeadRouteTask(payload LeadRoutePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLeadRoute, data), nil
}

func ParseLeadRoutePayload(task *asynq.Task) (LeadRoutePayload, error) {
	var payload LeadRoutePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return LeadRoutePayload{}, err
	}
	if _, err := uuid.Parse(payload.LeadID); err != nil {
		return LeadRoutePayload{}, fmt.Errorf("invalid lead id %q: %w", payload.LeadID, err)
	}
	return payload, nil
}
