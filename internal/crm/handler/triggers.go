package handler

import (
	"context"

	"estate_portal_backend/internal/crm/domain"
	"estate_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// RegisterTriggerRoutes mounts the sweep endpoints called by the scheduler.
func (h *Handler) RegisterTriggerRoutes(rg *gin.RouterGroup) {
	rg.POST("/escalation-alarms", h.sweep(h.svc.Escalation.SendEscalatingAlarms))
	rg.POST("/claim-breaches", h.sweep(h.svc.Timers.CheckClaimBreaches))
	rg.POST("/contact-window", h.sweep(h.svc.Escalation.CheckContactWindowExpiry))
}

// sweep runs one batch pass. Per-lead failures are in the report; only a
// failed selection query is an error.
func (h *Handler) sweep(run func(context.Context) (domain.SweepReport, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := run(c.Request.Context())
		if httpkit.HandleError(c, err) {
			return
		}
		if report.Results == nil {
			report.Results = []domain.SweepItem{}
		}
		httpkit.OK(c, report)
	}
}
