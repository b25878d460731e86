package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arklim/storefront-auth/internal/infra/config"
	"github.com/arklim/storefront-auth/internal/transport/http/handlers"
	"github.com/arklim/storefront-auth/internal/transport/http/middleware"
	"github.com/arklim/storefront-auth/internal/transport/http/validation"
	"github.com/arklim/storefront-auth/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on. Nil services
// leave their route group unregistered.
type ServiceSet struct {
	Auth    handlers.AuthUsecase
	Users   handlers.UserUsecase
	Uploads handlers.UploadUsecase
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Validator   *validation.Validator
	Services    ServiceSet
	HTTPMetrics *middleware.HTTPMetrics
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS(cfg.App.AllowedOrigins))
	if deps.HTTPMetrics != nil {
		r.Use(deps.HTTPMetrics.Handler())
	}

	maxBytes := cfg.Upload.MaxBytes
	if maxBytes <= 0 {
		maxBytes = usecase.DefaultMaxUploadBytes
	}
	r.MaxMultipartMemory = maxBytes

	healthOptions := make([]handlers.HealthOption, 0, 2)
	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("postgres", deps.Database.Ping))
	}
	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.Ping))
	}
	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.Upload.Dir != "" && cfg.Upload.PublicPrefix != "" {
		r.Static(cfg.Upload.PublicPrefix, cfg.Upload.Dir)
	}

	if deps.Services.Auth != nil {
		cookie := handlers.NewRefreshCookie(cfg.Cookie, cfg.JWT.RefreshTokenTTL)

		var opts []handlers.AuthHandlerOption
		if deps.RateLimiter != nil {
			opts = append(opts, handlers.WithRateLimits(deps.RateLimiter, cfg.RateLimit))
		}
		handlers.NewAuthHandler(deps.Services.Auth, deps.Validator, cookie, opts...).
			RegisterRoutes(r.Group("/auth"))

		if deps.Services.Users != nil {
			handlers.NewUserHandler(deps.Services.Users, deps.Validator, deps.Services.Auth, maxBytes).
				RegisterRoutes(r.Group("/user"))
		}
	} else {
		log.Warn("auth service not configured, /auth and /user routes disabled")
	}

	if deps.Services.Uploads != nil {
		handlers.NewFileHandler(deps.Services.Uploads).RegisterRoutes(r.Group("/files"))
	}

	return r
}
