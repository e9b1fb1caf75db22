package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	serviceName = "brainplus-backend"
	Version     = "1.0.0"
)

// HealthCheckFunc проверка одной зависимости (PostgreSQL, Redis)
type HealthCheckFunc func(ctx context.Context) error

type HealthHandler struct {
	environment string
	checks      map[string]HealthCheckFunc
}

func NewHealthHandler(environment string, checks map[string]HealthCheckFunc) *HealthHandler {
	return &HealthHandler{environment: environment, checks: checks}
}

// HealthCheck состояние сервиса и его зависимостей; 503, если хоть одна недоступна
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			results[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":      status,
		"service":     serviceName,
		"version":     Version,
		"environment": h.environment,
		"checks":      results,
	})
}
