package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/infra/config"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/handlers"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/transport/http/middleware"
	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Security    *usecase.SecurityFacade
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(deps.Metrics.Handler())
	if origins := deps.Config.App.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(middleware.CORS(origins))
	}

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Security == nil {
		return r
	}

	api := r.Group("/api/v1")
	if throttle := buildAPIMiddlewares(deps); len(throttle) > 0 {
		api.Use(throttle...)
	}
	{
		sessionMiddleware := middleware.RequireSession(deps.Security)

		handlers.NewSessionHandler(deps.Security).RegisterRoutes(api.Group("/session"))
		handlers.NewTwoFactorHandler(deps.Security).RegisterRoutes(api.Group("/2fa"), sessionMiddleware)
		handlers.NewAdminHandler(deps.Security).RegisterRoutes(api.Group("/admin"))
	}

	return r
}

func buildAPIMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	perMinute := deps.Config.RateLimit.APIRequestsPerMinute
	if perMinute <= 0 {
		return nil
	}

	rule := middleware.RateLimitRule{
		Name:              "api_client_ip",
		RequestsPerMinute: perMinute,
		Burst:             deps.Config.RateLimit.APIBurst,
		Identifier:        middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
