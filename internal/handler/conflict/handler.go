package conflict

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/middleware"
	"github.com/cyntientops/field-sync/internal/model"
	conflictService "github.com/cyntientops/field-sync/internal/service/conflict"
	"github.com/cyntientops/field-sync/pkg/httputil"
)

type Handler struct {
	service *conflictService.Service
}

func NewHandler(service *conflictService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/conflicts", h.ListConflicts)
	rg.GET("/conflicts/:id", h.GetConflict)
	rg.POST("/conflicts/:id/resolve", h.ResolveConflict)
}

func (h *Handler) ListConflicts(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid limit"})
			return
		}
		limit = parsed
	}

	conflicts, err := h.service.ListUnresolved(c.Request.Context(), limit)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": conflicts})
}

func (h *Handler) GetConflict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid conflict ID"})
		return
	}

	conflict, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if conflict == nil {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "conflict not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": conflict})
}

type resolveRequest struct {
	Strategy     string          `json:"strategy" binding:"required,oneof=manual server_wins client_wins merge"`
	ResolvedData json.RawMessage `json:"resolved_data"`
}

func (h *Handler) ResolveConflict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid conflict ID"})
		return
	}

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	resolvedBy := c.GetString(middleware.ContextOperator)
	if resolvedBy == "" {
		resolvedBy = "operator"
	}

	err = h.service.Resolve(c.Request.Context(), id,
		model.ResolutionStrategy(req.Strategy), req.ResolvedData, resolvedBy)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
