package handler

import (
	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouterDeps всё, что нужно роутеру
type RouterDeps struct {
	Deals               *DealHandler
	Redirects           *RedirectHandler
	Points              *PointsHandler
	Health              *HealthHandler
	RateLimiter         *middleware.RateLimiter
	IdentityRateLimiter *middleware.RateLimiter
	APIKey              *middleware.APIKey
	CORSOrigins         []string
	Logger              *zap.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(metrics.Middleware())
	router.Use(middleware.CORS(deps.CORSOrigins))

	router.GET("/health", deps.Health.HealthCheck)
	router.GET("/metrics", metrics.Handler())

	// Rate limiting по IP для всего API и редиректов
	limited := router.Group("/")
	if deps.RateLimiter != nil {
		limited.Use(deps.RateLimiter.Middleware())
	}

	// Редирект без аутентификации: сюда приходит браузер пользователя
	limited.GET("/r/:token", deps.Redirects.Redirect)

	// API v.1
	v1 := limited.Group("/api/v1")
	{
		v1.GET("/health", deps.Health.HealthCheck)
		v1.GET("/r/:token", deps.Redirects.Redirect)
		v1.GET("/deals", deps.Deals.List)

		identified := v1.Group("")
		identified.Use(middleware.Identity(true))
		if deps.IdentityRateLimiter != nil {
			identified.Use(deps.IdentityRateLimiter.MiddlewareWithKey(middleware.IdentityRateKey))
		}
		identified.POST("/deals/:dealId/click", deps.Deals.Click)
		identified.GET("/points/balance", deps.Points.Balance)

		// Идентификатор может прийти в теле (anonymousId), поэтому заголовок необязателен
		signals := v1.Group("")
		signals.Use(middleware.Identity(false))
		if deps.IdentityRateLimiter != nil {
			signals.Use(deps.IdentityRateLimiter.MiddlewareWithKey(middleware.IdentityRateKey))
		}
		signals.POST("/deals/match", deps.Deals.Match)

		admin := v1.Group("")
		if deps.APIKey != nil {
			admin.Use(deps.APIKey.Middleware())
		}
		admin.GET("/deals/:dealId/stats", deps.Deals.Stats)
	}

	return router
}
