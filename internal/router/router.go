package router

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/cyntientops/field-sync/internal/config"
	"github.com/cyntientops/field-sync/internal/handler"
	authHandler "github.com/cyntientops/field-sync/internal/handler/auth"
	conflictHandler "github.com/cyntientops/field-sync/internal/handler/conflict"
	notificationHandler "github.com/cyntientops/field-sync/internal/handler/notification"
	syncHandler "github.com/cyntientops/field-sync/internal/handler/sync"
	"github.com/cyntientops/field-sync/internal/middleware"
	conflictService "github.com/cyntientops/field-sync/internal/service/conflict"
	notificationService "github.com/cyntientops/field-sync/internal/service/notification"
	syncService "github.com/cyntientops/field-sync/internal/service/sync"
	"github.com/cyntientops/field-sync/pkg/auth"
	"github.com/cyntientops/field-sync/pkg/logger"
	"github.com/cyntientops/field-sync/pkg/security"
)

type Dependencies struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            *sqlx.DB
	JWT           auth.JWTService
	Hasher        security.PasswordHasher
	Sync          *syncService.Service
	Conflicts     *conflictService.Service
	Notifications *notificationService.Service
}

// New assembles the gin engine with the full middleware chain and all
// route groups.
func New(deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger(deps.Logger))

	limiter := middleware.NewRateLimiter(rate.Limit(50), 100)
	engine.Use(limiter.RateLimit())

	handler.RegisterValidations()

	health := handler.NewHealthHandler(deps.DB)
	engine.GET("/healthz", health.Live)
	engine.GET("/readyz", health.Ready)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := engine.Group("/api/v1")
	authHandler.NewHandler(deps.JWT, deps.Hasher, deps.Config.Auth.Operators).RegisterRoutes(public)

	protected := engine.Group("/api/v1")
	protected.Use(middleware.NewAuthMiddleware(deps.JWT).Authenticate())

	syncHandler.NewHandler(deps.Sync).RegisterRoutes(protected)
	conflictHandler.NewHandler(deps.Conflicts).RegisterRoutes(protected)
	notificationHandler.NewHandler(deps.Notifications).RegisterRoutes(protected)

	return engine
}
