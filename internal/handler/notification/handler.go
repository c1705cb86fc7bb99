package notification

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cyntientops/field-sync/internal/model"
	notificationService "github.com/cyntientops/field-sync/internal/service/notification"
	"github.com/cyntientops/field-sync/pkg/httputil"
)

type Handler struct {
	service *notificationService.Service
}

func NewHandler(service *notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.CreateNotification)
	rg.GET("/notifications", h.ListNotifications)
	rg.GET("/notifications/unread-count", h.UnreadCount)
	rg.POST("/notifications/:id/read", h.MarkRead)
	rg.DELETE("/notifications/:id", h.DeleteNotification)

	rg.GET("/preferences/:userID", h.GetPreferences)
	rg.PUT("/preferences/:userID", h.UpdatePreferences)
}

type createRequest struct {
	Type      string                     `json:"type" binding:"required,oneof=task emergency system message compliance weather maintenance"`
	Priority  string                     `json:"priority" binding:"omitempty,oneof=low medium high critical"`
	Title     string                     `json:"title" binding:"required"`
	Message   string                     `json:"message" binding:"required"`
	Data      json.RawMessage            `json:"data"`
	UserID    string                     `json:"user_id" binding:"required"`
	UserRole  string                     `json:"user_role"`
	ExpiresAt *time.Time                 `json:"expires_at"`
	Actions   []model.NotificationAction `json:"actions"`
	Category  *string                    `json:"category"`
	Sound     bool                       `json:"sound"`
	Vibration bool                       `json:"vibration"`
	Badge     bool                       `json:"badge"`
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	n, err := h.service.Create(c.Request.Context(), notificationService.CreateRequest{
		Type:      model.NotificationType(req.Type),
		Priority:  model.Priority(req.Priority),
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		UserID:    req.UserID,
		UserRole:  req.UserRole,
		ExpiresAt: req.ExpiresAt,
		Actions:   req.Actions,
		Category:  req.Category,
		Sound:     req.Sound,
		Vibration: req.Vibration,
		Badge:     req.Badge,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"status": "success", "data": n})
}

func (h *Handler) ListNotifications(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "user_id is required"})
		return
	}

	limit, offset := 0, 0
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid limit"})
			return
		}
		limit = parsed
	}
	if v := c.Query("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid offset"})
			return
		}
		offset = parsed
	}

	items, err := h.service.ListByUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": items})
}

func (h *Handler) UnreadCount(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "user_id is required"})
		return
	}

	count, err := h.service.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"unread": count}})
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid notification ID"})
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) DeleteNotification(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid notification ID"})
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

type quietHoursRequest struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start" binding:"omitempty,hhmm"`
	End      string `json:"end" binding:"omitempty,hhmm"`
	Timezone string `json:"timezone"`
}

type preferencesRequest struct {
	UserRole   string                          `json:"user_role"`
	Enabled    bool                            `json:"enabled"`
	Types      map[model.NotificationType]bool `json:"types"`
	Priorities map[model.Priority]bool         `json:"priorities"`
	Channels   map[string]bool                 `json:"channels"`
	QuietHours quietHoursRequest               `json:"quiet_hours"`
	Sound      bool                            `json:"sound"`
	Vibration  bool                            `json:"vibration"`
	Badge      bool                            `json:"badge"`
}

func (h *Handler) GetPreferences(c *gin.Context) {
	userID := c.Param("userID")

	prefs, err := h.service.Preferences(c.Request.Context(), userID, "")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": prefs})
}

func (h *Handler) UpdatePreferences(c *gin.Context) {
	userID := c.Param("userID")

	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}
	if req.QuietHours.Enabled && (req.QuietHours.Start == "" || req.QuietHours.End == "") {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "quiet hours require start and end"})
		return
	}

	prefs := &model.NotificationPreferences{
		UserID:     userID,
		UserRole:   req.UserRole,
		Enabled:    req.Enabled,
		Types:      req.Types,
		Priorities: req.Priorities,
		Channels:   req.Channels,
		QuietHours: model.QuietHours{
			Enabled:  req.QuietHours.Enabled,
			Start:    req.QuietHours.Start,
			End:      req.QuietHours.End,
			Timezone: req.QuietHours.Timezone,
		},
		Sound:     req.Sound,
		Vibration: req.Vibration,
		Badge:     req.Badge,
	}

	if err := h.service.UpdatePreferences(c.Request.Context(), prefs); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "success", "data": prefs})
}
