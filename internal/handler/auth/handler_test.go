package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/pkg/auth"
	"github.com/cyntientops/field-sync/pkg/security"
)

func newTestRouter(t *testing.T) (*gin.Engine, auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hasher := security.NewBcryptHasher(4)
	hash, err := hasher.Hash("password123")
	require.NoError(t, err)

	jwtSvc := auth.NewJWTService("test-secret", time.Hour)
	h := NewHandler(jwtSvc, hasher, []config.OperatorCredential{
		{Name: "dispatcher", PasswordHash: hash, Role: "operator"},
	})

	r := gin.New()
	h.RegisterRoutes(r.Group("/api/v1"))
	return r, jwtSvc
}

func postToken(t *testing.T, r *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIssueTokenSuccess(t *testing.T) {
	r, jwtSvc := newTestRouter(t)

	w := postToken(t, r, gin.H{"operator": "dispatcher", "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	require.NotEmpty(t, resp.Data.Token)

	claims, err := jwtSvc.ValidateToken(resp.Data.Token)
	require.NoError(t, err)
	assert.Equal(t, "dispatcher", claims.Operator)
	assert.Equal(t, "operator", claims.Role)
}

func TestIssueTokenWrongPassword(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postToken(t, r, gin.H{"operator": "dispatcher", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credentials")
}

func TestIssueTokenUnknownOperator(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postToken(t, r, gin.H{"operator": "nobody", "password": "password123"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIssueTokenMalformedBody(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewReader([]byte(`{"operator":`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueTokenMissingFields(t *testing.T) {
	r, _ := newTestRouter(t)

	w := postToken(t, r, gin.H{"operator": "dispatcher"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
