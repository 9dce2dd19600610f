// Package notification turns CRM domain events into real-time pushes and
// serves the in-app notification inbox.
// Domain modules publish events; this module decides who hears about them.
package notification

import (
	"context"
	"fmt"

	"estate_portal_backend/internal/events"
	apphttp "estate_portal_backend/internal/http"
	notifhandler "estate_portal_backend/internal/notification/handler"
	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/internal/notification/sse"
	"estate_portal_backend/platform/httpkit"
	"estate_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pusher delivers events to connected agents.
type Pusher interface {
	Publish(agentID uuid.UUID, event sse.Event)
	PublishToAgents(agentIDs []uuid.UUID, event sse.Event)
	PublishToAdmins(event sse.Event)
}

// Module handles all notification-related event subscriptions.
type Module struct {
	log          *logger.Logger
	sse          *sse.Service
	pusher       Pusher
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
}

// New creates a new notification module backed by the given pool.
func New(pool *pgxpool.Pool, log *logger.Logger) *Module {
	var store inapp.Store
	if pool != nil {
		store = inapp.NewRepository(pool)
	}
	return NewWithStore(store, log)
}

// NewWithStore creates the module on an arbitrary in-app store.
func NewWithStore(store inapp.Store, log *logger.Logger) *Module {
	m := &Module{log: log}
	if store != nil {
		m.inAppService = inapp.NewService(store, log)
		m.inAppHandler = notifhandler.NewHTTPHandler(m.inAppService)
	}
	return m
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers the inbox and the event stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	if m.inAppHandler != nil {
		notifications := ctx.Protected.Group("/crm/notifications")
		m.inAppHandler.RegisterRoutes(notifications)
	}
	if m.sse != nil {
		ctx.Protected.GET("/crm/events", m.sse.Handler(identifyStream))
	}
}

func identifyStream(c *gin.Context) (uuid.UUID, bool, bool) {
	id := httpkit.GetIdentity(c)
	if !id.IsAuthenticated() {
		return uuid.Nil, false, false
	}
	return id.UserID(), id.IsAdmin(), true
}

// SetSSE injects the SSE service so CRM events reach connected agents.
func (m *Module) SetSSE(s *sse.Service) {
	m.sse = s
	m.pusher = s
	if m.inAppService != nil {
		m.inAppService.SetSSE(s)
	}
}

// SetPusher overrides the push target without an SSE service.
func (m *Module) SetPusher(p Pusher) { m.pusher = p }

// InAppService exposes the in-app notification service for integration points.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadBroadcast{}.EventName(), m)
	bus.Subscribe(events.LeadAssigned{}.EventName(), m)
	bus.Subscribe(events.LeadClaimed{}.EventName(), m)
	bus.Subscribe(events.LeadContacted{}.EventName(), m)
	bus.Subscribe(events.EscalationAlarmSent{}.EventName(), m)
	bus.Subscribe(events.SLABreached{}.EventName(), m)
	bus.Subscribe(events.LeadReassigned{}.EventName(), m)
	bus.Subscribe(events.LeadUnroutable{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle implements events.Handler.
func (m *Module) Handle(_ context.Context, event events.Event) error {
	if m.pusher == nil {
		return nil
	}
	switch e := event.(type) {
	case events.LeadBroadcast:
		m.pusher.PublishToAgents(e.PoolAgentIDs, sse.Event{
			Type:    sse.EventLeadBroadcast,
			LeadID:  e.LeadID,
			Message: "New lead available to claim",
			Data:    gin.H{"language": e.Language, "claimExpiresAt": e.ClaimExpiresAt},
		})
	case events.LeadAssigned:
		m.pusher.Publish(e.AgentID, sse.Event{
			Type:    sse.EventLeadAssigned,
			LeadID:  e.LeadID,
			Message: "A lead was assigned to you",
			Data:    gin.H{"assignmentMethod": e.AssignmentMethod},
		})
	case events.LeadClaimed:
		claimed := sse.Event{
			Type:    sse.EventLeadClaimed,
			LeadID:  e.LeadID,
			Message: "Lead claimed",
			Data:    gin.H{"agentId": e.AgentID},
		}
		m.pusher.PublishToAgents(append([]uuid.UUID{e.AgentID}, e.PoolAgentIDs...), claimed)
		m.pusher.PublishToAdmins(claimed)
	case events.LeadContacted:
		m.pusher.PublishToAdmins(sse.Event{
			Type:    sse.EventLeadContacted,
			LeadID:  e.LeadID,
			Message: "Lead contacted",
			Data:    gin.H{"agentId": e.AgentID},
		})
	case events.EscalationAlarmSent:
		m.pusher.PublishToAgents(e.PoolAgentIDs, sse.Event{
			Type:    sse.EventEscalationAlarm,
			LeadID:  e.LeadID,
			Message: fmt.Sprintf("Lead still unclaimed (alarm %d of 4)", e.Level),
			Data:    gin.H{"level": e.Level},
		})
	case events.SLABreached:
		breach := sse.Event{
			Type:    sse.EventSLABreached,
			LeadID:  e.LeadID,
			Message: fmt.Sprintf("%s window missed", e.Kind),
			Data:    gin.H{"kind": e.Kind},
		}
		m.pusher.PublishToAdmins(breach)
		if e.AgentID != nil {
			m.pusher.Publish(*e.AgentID, breach)
		}
	case events.LeadReassigned:
		moved := sse.Event{
			Type:    sse.EventLeadReassigned,
			LeadID:  e.LeadID,
			Message: "Lead reassigned",
			Data:    gin.H{"toAgentId": e.ToAgentID, "reason": e.Reason},
		}
		targets := []uuid.UUID{e.ToAgentID}
		if e.FromAgentID != nil {
			targets = append(targets, *e.FromAgentID)
		}
		m.pusher.PublishToAgents(targets, moved)
		m.pusher.PublishToAdmins(moved)
	case events.LeadUnroutable:
		m.pusher.PublishToAdmins(sse.Event{
			Type:    sse.EventLeadUnroutable,
			LeadID:  e.LeadID,
			Message: "Lead could not be routed",
			Data:    gin.H{"language": e.Language, "reason": e.Reason},
		})
	default:
		m.log.Debug("notification module ignoring event", "event", event.EventName())
	}
	return nil
}
