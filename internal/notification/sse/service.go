// Package sse provides Server-Sent Events support for real-time CRM alerts.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"estate_portal_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EventType represents different types of SSE events
type EventType string

const (
	EventLeadBroadcast     EventType = "lead_broadcast"
	EventLeadAssigned      EventType = "lead_assigned"
	EventLeadClaimed       EventType = "lead_claimed"
	EventLeadContacted     EventType = "lead_contacted"
	EventLeadReassigned    EventType = "lead_reassigned"
	EventEscalationAlarm   EventType = "escalation_alarm"
	EventSLABreached       EventType = "sla_breached"
	EventLeadUnroutable    EventType = "lead_unroutable"
	EventInAppNotification EventType = "in_app_notification"
)

// Event represents an SSE event payload
type Event struct {
	Type    EventType `json:"type"`
	LeadID  uuid.UUID `json:"leadId,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// client represents a connected SSE client
type client struct {
	agentID uuid.UUID
	admin   bool
	events  chan Event
}

// Service manages SSE connections and event fan-out
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client // agentID -> clients
	log     *logger.Logger
}

// New creates a new SSE service
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.agentID] = append(s.clients[c.agentID], c)
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clients := s.clients[c.agentID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.agentID] = append(clients[:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.agentID]) == 0 {
		delete(s.clients, c.agentID)
	}
}

// Publish sends an event to every connection of one agent.
func (s *Service) Publish(agentID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients[agentID] {
		s.deliver(c, event)
	}
}

// PublishToAgents sends an event to each listed agent once.
func (s *Service) PublishToAgents(agentIDs []uuid.UUID, event Event) {
	seen := make(map[uuid.UUID]bool, len(agentIDs))
	for _, id := range agentIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		s.Publish(id, event)
	}
}

// PublishToAdmins sends an event to every connected admin.
func (s *Service) PublishToAdmins(event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, clients := range s.clients {
		for _, c := range clients {
			if c.admin {
				s.deliver(c, event)
			}
		}
	}
}

// ConnectedAgents reports how many agents hold at least one stream.
func (s *Service) ConnectedAgents() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// deliver must be called with at least the read lock held.
func (s *Service) deliver(c *client, event Event) {
	select {
	case c.events <- event:
	default:
		if s.log != nil {
			s.log.Warn("sse buffer full", "agentId", c.agentID, "event", event.Type)
		}
	}
}

// Handler returns a Gin handler for SSE connections
func (s *Service) Handler(identify func(*gin.Context) (uuid.UUID, bool, bool)) gin.HandlerFunc {
	return func(c *gin.Context) {
		agentID, admin, ok := identify(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			agentID: agentID,
			admin:   admin,
			events:  make(chan Event, 32),
		}
		s.addClient(cl)
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"agentId": agentID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close drops every connection.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
