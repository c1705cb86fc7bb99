package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/pkg/auth"
	"github.com/cyntientops/field-sync/pkg/security"
)

type Handler struct {
	jwt       auth.JWTService
	hasher    security.PasswordHasher
	operators []config.OperatorCredential
}

func NewHandler(jwt auth.JWTService, hasher security.PasswordHasher, operators []config.OperatorCredential) *Handler {
	return &Handler{jwt: jwt, hasher: hasher, operators: operators}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/token", h.IssueToken)
}

type tokenRequest struct {
	Operator string `json:"operator" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// IssueToken exchanges operator credentials for a bearer token. Credentials
// are configured as bcrypt hashes; there is no user store in this service.
func (h *Handler) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": err.Error()})
		return
	}

	for _, op := range h.operators {
		if op.Name != req.Operator {
			continue
		}
		if err := h.hasher.Compare(op.PasswordHash, req.Password); err != nil {
			break
		}

		token, err := h.jwt.GenerateToken(op.Name, op.Role)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "success", "data": gin.H{"token": token}})
		return
	}

	c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid credentials"})
}
