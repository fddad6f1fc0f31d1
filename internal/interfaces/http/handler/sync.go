package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	appsync "github.com/channelhub/backend/internal/application/sync"
	"github.com/channelhub/backend/internal/domain/sync"
	"github.com/channelhub/backend/internal/interfaces/http/middleware"
)

// SyncHandler serves the manual sync trigger and the status read model
type SyncHandler struct {
	BaseHandler
	trigger *appsync.TriggerService
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(trigger *appsync.TriggerService) *SyncHandler {
	return &SyncHandler{trigger: trigger}
}

// RegisterRoutes registers the sync routes
func (h *SyncHandler) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group("/sync")
	group.POST("/trigger", h.TriggerSync)
	group.GET("/status", h.GetStatus)
}

// TriggerSyncRequest is the manual trigger request body
type TriggerSyncRequest struct {
	SyncType sync.SyncType `json:"sync_type" binding:"required,synctype"`
}

// TriggerSyncResponse acks the trigger; results land in the status endpoint
type TriggerSyncResponse struct {
	Message  string `json:"message"`
	Enqueued int    `json:"enqueued"`
	Skipped  int    `json:"skipped"`
}

// TriggerSync enqueues a sync run for every connected platform of the tenant
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant could not be resolved from token")
		return
	}

	var req TriggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	result, err := h.trigger.TriggerSync(c.Request.Context(), tenantID, req.SyncType.JobType())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, TriggerSyncResponse{
		Message:  fmt.Sprintf("%s sync queued", req.SyncType),
		Enqueued: result.Enqueued,
		Skipped:  result.Skipped,
	})
}

// GetStatus returns aggregate job stats plus the tenant's recent jobs
func (h *SyncHandler) GetStatus(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Tenant could not be resolved from token")
		return
	}

	status, err := h.trigger.GetSyncStatus(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}
