package handler

import (
	"net/http"

	"estate_portal_backend/internal/notification/inapp"
	"estate_portal_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxPageSize = 50

// ListQuery is the paging window of the notification inbox.
type ListQuery struct {
	Page  int `form:"page"`
	Limit int `form:"limit"`
}

func (q *ListQuery) normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 20
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
}

// InboxResponse is one page of an agent's notifications.
type InboxResponse struct {
	Items  []inapp.Notification `json:"items"`
	Total  int                  `json:"total"`
	Unread int                  `json:"unread"`
	Page   int                  `json:"page"`
	Limit  int                  `json:"limit"`
}

// HTTPHandler serves the agent notification inbox.
type HTTPHandler struct {
	svc *inapp.Service
}

func NewHTTPHandler(svc *inapp.Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

func (h *HTTPHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.GET("/unread", h.CountUnread)
	rg.PATCH("/:id/read", h.MarkRead)
	rg.PATCH("/read-all", h.MarkAllRead)
}

func (h *HTTPHandler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var q ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid paging parameters", err.Error())
		return
	}
	q.normalize()

	ctx := c.Request.Context()
	items, total, err := h.svc.List(ctx, identity.UserID(), q.Page, q.Limit)
	if httpkit.HandleError(c, err) {
		return
	}
	unread, err := h.svc.CountUnread(ctx, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	if items == nil {
		items = []inapp.Notification{}
	}

	httpkit.OK(c, InboxResponse{
		Items:  items,
		Total:  total,
		Unread: unread,
		Page:   q.Page,
		Limit:  q.Limit,
	})
}

func (h *HTTPHandler) CountUnread(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	count, err := h.svc.CountUnread(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"count": count})
}

// MarkRead only touches notifications addressed to the caller; anything else is a 404.
func (h *HTTPHandler) MarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid notification id", nil)
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), identity.UserID(), id); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"id": id, "isRead": true})
}

func (h *HTTPHandler) MarkAllRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	updated, err := h.svc.MarkAllRead(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"updated": updated})
}
