package sync

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/model"
	syncService "github.com/cyntientops/field-sync/internal/service/sync"
	"github.com/cyntientops/field-sync/pkg/httputil"
)

type Handler struct {
	service *syncService.Service
}

func NewHandler(service *syncService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/operations", h.EnqueueOperation)
	rg.GET("/operations", h.ListOperations)
	rg.GET("/operations/:id", h.GetOperation)
	rg.POST("/operations/:id/retry", h.RetryOperation)
	rg.GET("/sync/stats", h.Stats)
	rg.POST("/sync/drain", h.Drain)
}

type enqueueRequest struct {
	Type       string          `json:"type" binding:"required,oneof=create update delete"`
	Entity     string          `json:"entity" binding:"required,oneof=task worker building clock_in photo note"`
	EntityID   string          `json:"entity_id" binding:"required"`
	Data       json.RawMessage `json:"data" binding:"required"`
	UserID     string          `json:"user_id" binding:"required"`
	UserRole   string          `json:"user_role"`
	Priority   string          `json:"priority" binding:"omitempty,oneof=low medium high critical"`
	MaxRetries int             `json:"max_retries" binding:"omitempty,min=1,max=10"`
}

func (h *Handler) EnqueueOperation(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	op, err := h.service.Enqueue(c.Request.Context(), syncService.EnqueueRequest{
		Type:       model.OperationType(req.Type),
		Entity:     model.EntityType(req.Entity),
		EntityID:   req.EntityID,
		Data:       req.Data,
		UserID:     req.UserID,
		UserRole:   req.UserRole,
		Priority:   model.Priority(req.Priority),
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": op})
}

func (h *Handler) GetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid operation ID"})
		return
	}

	op, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if op == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "operation not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": op})
}

func (h *Handler) ListOperations(c *gin.Context) {
	status := model.OperationStatus(c.DefaultQuery("status", string(model.StatusPending)))
	switch status {
	case model.StatusPending, model.StatusSyncing, model.StatusCompleted,
		model.StatusFailed, model.StatusConflict:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid status filter"})
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid limit"})
			return
		}
		limit = parsed
	}

	ops, err := h.service.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": ops})
}

func (h *Handler) RetryOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid operation ID"})
		return
	}

	if err := h.service.Retry(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "success"})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": stats})
}

func (h *Handler) Drain(c *gin.Context) {
	h.service.TriggerDrain()
	c.JSON(http.StatusAccepted, gin.H{"status": "success"})
}
