package handler

import (
	"net/http"

	"github.com/SergeiKhy/brainplus-backend/internal/middleware"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PointsHandler struct {
	points service.PointsService
	logger *zap.Logger
}

func NewPointsHandler(points service.PointsService, logger *zap.Logger) *PointsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PointsHandler{points: points, logger: logger}
}

// Balance баланс баллов анонимного пользователя.
// GET /api/v1/points/balance
func (h *PointsHandler) Balance(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_identity",
			Message: "Anonymous ID required",
		})
		return
	}

	total, err := h.points.Balance(c.Request.Context(), identity)
	if err != nil {
		h.logger.Error("Не удалось получить баланс", zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Не удалось получить баланс",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"data":      gin.H{"total": total},
		"timestamp": nowMillis(),
	})
}
