package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cyntientops/field-sync/pkg/logger"
)

// Logger logs each request with latency, status, and request ID.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(ContextRequestID),
		)
	}
}
