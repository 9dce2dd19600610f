package handler

import (
	"net/http"
	"strconv"
	"strings"

	"estate_portal_backend/internal/crm/reassignment"
	"estate_portal_backend/internal/crm/transport"
	"estate_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// RegisterAdminRoutes mounts the administration endpoints.
func (h *Handler) RegisterAdminRoutes(rg *gin.RouterGroup) {
	rg.GET("/leads/unroutable", h.ListUnroutable)
	rg.POST("/leads/:id/reassign", h.ReassignLead)
	rg.GET("/leads/:id/reassignments", h.ListReassignments)
	rg.POST("/leads/:id/route", h.RouteLead)
	rg.DELETE("/leads/:id", h.ArchiveLead)

	rg.POST("/routing/test", h.TestRouting)
	rg.GET("/routing-rules", h.ListRules)
	rg.POST("/routing-rules", h.CreateRule)
	rg.GET("/routing-rules/:id", h.GetRule)
	rg.PUT("/routing-rules/:id", h.UpdateRule)
	rg.DELETE("/routing-rules/:id", h.DeleteRule)

	rg.GET("/round-robin", h.ListPools)
	rg.GET("/round-robin/:language", h.GetPool)
	rg.PUT("/round-robin/:language", h.UpsertPool)

	rg.GET("/agents", h.ListAgents)
	rg.PATCH("/agents/:id/active", h.SetAgentActive)
}

func (h *Handler) ReassignLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.ReassignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.Reassignment.ReassignLead(c.Request.Context(), reassignment.Request{
		LeadID:       id,
		ToAgentID:    req.ToAgentID,
		Reason:       req.Reason,
		Notes:        req.Notes,
		ReassignedBy: identity.UserID(),
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ReassignLeadResponse{
		Lead:     transport.ToLeadResponse(res.Lead),
		Record:   transport.ToReassignment(res.Record),
		Warnings: res.Warnings,
	})
}

func (h *Handler) ListReassignments(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	records, err := h.svc.Reassignment.History(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToReassignmentList(records)})
}

func (h *Handler) RouteLead(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.svc.Routing.RouteLead(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RouteLeadResponse{
		Lead:    transport.ToLeadResponse(res.Lead),
		Routing: transport.ToRouteResult(res),
	})
}

func (h *Handler) ArchiveLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}
	id, ok := parseID(c)
	if !ok {
		return
	}

	lead, err := h.svc.Leads.Archive(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) ListUnroutable(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	items, err := h.svc.Leads.Unroutable(c.Request.Context(), limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToLeadList(items)})
}

func (h *Handler) TestRouting(c *gin.Context) {
	var req transport.RoutingTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	preview, err := h.svc.Routing.PreviewRoute(c.Request.Context(), req.Attributes())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPreview(preview))
}

func (h *Handler) ListRules(c *gin.Context) {
	rules, err := h.svc.Routing.ListRules(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToRuleList(rules)})
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.RoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.Routing.CreateRule(c.Request.Context(), req.ToRule())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToRule(rule))
}

func (h *Handler) GetRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	rule, err := h.svc.Routing.GetRule(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRule(rule))
}

func (h *Handler) UpdateRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.RoutingRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	rule, err := h.svc.Routing.UpdateRule(c.Request.Context(), id, req.ToRule())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToRule(rule))
}

func (h *Handler) DeleteRule(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.svc.Routing.DeleteRule(c.Request.Context(), id); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListPools(c *gin.Context) {
	pools, err := h.svc.Routing.ListPools(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToPoolList(pools)})
}

func (h *Handler) GetPool(c *gin.Context) {
	language, ok := parseLanguage(c)
	if !ok {
		return
	}

	pool, err := h.svc.Routing.GetPool(c.Request.Context(), language)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPool(pool))
}

func (h *Handler) UpsertPool(c *gin.Context) {
	language, ok := parseLanguage(c)
	if !ok {
		return
	}

	var req transport.RoundRobinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	pool, err := h.svc.Routing.UpsertPool(c.Request.Context(), req.ToConfig(language))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToPool(pool))
}

func (h *Handler) ListAgents(c *gin.Context) {
	agents, err := h.svc.Routing.ListAgents(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"items": transport.ToAgentList(agents)})
}

func (h *Handler) SetAgentActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.SetAgentActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	agent, err := h.svc.Routing.SetAgentActive(c.Request.Context(), id, *req.IsActive)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToAgent(agent))
}

func parseLanguage(c *gin.Context) (string, bool) {
	language := strings.ToLower(strings.TrimSpace(c.Param("language")))
	if len(language) != 2 {
		httpkit.Error(c, http.StatusBadRequest, "language must be a two-letter code", nil)
		return "", false
	}
	return language, true
}
