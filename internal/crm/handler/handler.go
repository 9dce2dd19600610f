// Package handler exposes the CRM services over gin.
package handler

import (
	"net/http"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/internal/crm/escalation"
	"estate_portal_backend/internal/crm/intake"
	"estate_portal_backend/internal/crm/leads"
	"estate_portal_backend/internal/crm/reassignment"
	"estate_portal_backend/internal/crm/routing"
	"estate_portal_backend/internal/crm/timers"
	"estate_portal_backend/internal/crm/transport"
	"estate_portal_backend/platform/httpkit"
	"estate_portal_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

// Services groups the CRM services the handler calls.
type Services struct {
	Intake       *intake.Service
	Leads        *leads.Service
	Timers       *timers.Service
	Routing      *routing.Service
	Reassignment *reassignment.Service
	Escalation   *escalation.Service
}

type Handler struct {
	svc Services
	val *validator.Validator
}

func New(svc Services, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterPublicRoutes mounts the anonymous intake endpoint.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads", h.CaptureLead)
}

// RegisterAgentRoutes mounts the lead endpoints for agents and admins.
func (h *Handler) RegisterAgentRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/:id", h.GetLead)
	rg.POST("/leads/:id/claim", h.ClaimLead)
	rg.POST("/leads/:id/first-action", h.MarkFirstAction)
	rg.GET("/leads/:id/activities", h.ListActivities)
}

func (h *Handler) CaptureLead(c *gin.Context) {
	var req transport.CaptureLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.Intake.CaptureLead(c.Request.Context(), intake.Input{
		FullName:    req.FullName,
		Email:       req.Email,
		Phone:       req.Phone,
		Language:    req.Language,
		Source:      req.Source,
		Segment:     req.Segment,
		BudgetRange: req.BudgetRange,
		PageType:    req.PageType,
		Message:     req.Message,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.CaptureLeadResponse{
		Lead:   transport.ToLeadResponse(res.Lead),
		Queued: res.Queued,
	}
	if res.Route != nil {
		route := transport.ToRouteResult(*res.Route)
		resp.Routing = &route
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) GetLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Leads.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	if !canView(identity, lead) {
		httpkit.Error(c, http.StatusForbidden, "lead belongs to another agent", nil)
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ClaimLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.svc.Timers.ClaimLead(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusOK
	if res.Status == domain.ClaimAlreadyClaimed {
		status = http.StatusConflict
	}
	httpkit.JSON(c, status, transport.ClaimResponse{
		Status: string(res.Status),
		Lead:   transport.ToLeadResponse(res.Lead),
	})
}

func (h *Handler) MarkFirstAction(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Timers.MarkFirstAction(c.Request.Context(), id, identity.UserID(), identity.IsAdmin())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ListActivities(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Leads.Get(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	if !canView(identity, lead) {
		httpkit.Error(c, http.StatusForbidden, "lead belongs to another agent", nil)
		return
	}

	items, err := h.svc.Leads.Activities(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToActivityList(items)})
}

// canView lets admins see everything and agents see their own leads plus
// leads still open for claiming.
func canView(identity httpkit.Identity, lead domain.Lead) bool {
	if identity.IsAdmin() || lead.IsAssignedTo(identity.UserID()) {
		return true
	}
	return !lead.LeadClaimed && lead.ClaimTimerStartedAt != nil
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, nil)
		return uuid.Nil, false
	}
	return id, true
}
