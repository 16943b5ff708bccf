package ops

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/livestatement/backend/internal/application/event"
)

// OutboxHandler exposes dead-letter review for the outbox and the handler gate
type OutboxHandler struct {
	BaseHandler
	service *event.OutboxService
}

// NewOutboxHandler creates a new OutboxHandler
func NewOutboxHandler(service *event.OutboxService) *OutboxHandler {
	return &OutboxHandler{service: service}
}

// RetryAllResponse reports how many entries were reset
type RetryAllResponse struct {
	Count int64 `json:"count"`
}

// GetDeadLetterEntries lists dead entries.
// GET /ops/outbox/dead?page=1&page_size=20
func (h *OutboxHandler) GetDeadLetterEntries(c *gin.Context) {
	var filter event.OutboxFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.GetDeadLetterEntries(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewSuccessResponseWithMeta(result.Entries, result.Total, result.Page, result.PageSize, result.TotalPages))
}

// GetEntry returns one outbox entry.
// GET /ops/outbox/:id
func (h *OutboxHandler) GetEntry(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.GetEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryDeadEntry puts a dead entry back in the relay queue.
// POST /ops/outbox/:id/retry
func (h *OutboxHandler) RetryDeadEntry(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.RetryDeadEntry(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entry)
}

// RetryAllDeadEntries resets every dead entry.
// POST /ops/outbox/dead/retry-all
func (h *OutboxHandler) RetryAllDeadEntries(c *gin.Context) {
	count, err := h.service.RetryAllDeadEntries(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, RetryAllResponse{Count: count})
}

// GetStats returns entry counts per status.
// GET /ops/outbox/stats
func (h *OutboxHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}

// GetFailedJobs lists a tenant's failed handler runs.
// GET /ops/tenants/:tenant/jobs/failed?limit=50
func (h *OutboxHandler) GetFailedJobs(c *gin.Context) {
	tenantID, ok := h.parseUUIDParam(c, "tenant")
	if !ok {
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.BadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}
	jobs, err := h.service.GetFailedJobs(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, jobs)
}
