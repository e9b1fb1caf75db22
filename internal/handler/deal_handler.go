package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/SergeiKhy/brainplus-backend/internal/middleware"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DealHandlerConfig параметры обработчика сделок
type DealHandlerConfig struct {
	BaseURL     string // публичный адрес сервиса для /r/{token}
	AffiliateID string
	ClickGating bool // отклонять клики с высоким риском
}

type DealHandler struct {
	catalog     service.DealCatalog
	scorer      service.RiskScorer
	ledger      service.RedirectLedger
	points      service.PointsService
	attribution service.AttributionProcessor
	cfg         DealHandlerConfig
	logger      *zap.Logger
}

func NewDealHandler(
	catalog service.DealCatalog,
	scorer service.RiskScorer,
	ledger service.RedirectLedger,
	points service.PointsService,
	attribution service.AttributionProcessor,
	cfg DealHandlerConfig,
	logger *zap.Logger,
) *DealHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DealHandler{
		catalog:     catalog,
		scorer:      scorer,
		ledger:      ledger,
		points:      points,
		attribution: attribution,
		cfg:         cfg,
		logger:      logger,
	}
}

type DealClickResponse struct {
	Success     bool   `json:"success"`
	ShortID     string `json:"short_id"`
	RedirectURL string `json:"redirect_url"`
	RiskScore   int    `json:"risk_score"`
}

type DealsResponse struct {
	Success           bool          `json:"success"`
	Deals             []models.Deal `json:"deals"`
	TotalCount        int           `json:"total_count"`
	MatchedCategories []string      `json:"matched_categories"`
	Timestamp         int64         `json:"timestamp"`
}

type MatchData struct {
	Matches      []models.DealMatch `json:"matches"`
	PointsEarned int                `json:"pointsEarned"`
	RiskScore    int                `json:"riskScore"`
	Flagged      bool               `json:"flagged"`
}

type MatchResponse struct {
	Success   bool      `json:"success"`
	Data      MatchData `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

// Click регистрирует клик по сделке и выдаёт токен серверного редиректа.
// POST /api/v1/deals/:dealId/click
func (h *DealHandler) Click(c *gin.Context) {
	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_identity",
			Message: "Anonymous ID required",
		})
		return
	}

	assessment := h.scorer.Score(identity, 1)
	if h.cfg.ClickGating && assessment.HighRisk {
		h.logger.Warn("Клик отклонён: высокий риск",
			zap.String("identity_hash", assessment.IdentityHash),
			zap.Int("risk_score", assessment.Score),
		)
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "high_risk",
			Message: "Request rejected",
		})
		return
	}

	dealID := c.Param("dealId")
	deal, err := h.catalog.Get(dealID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "deal_not_found",
			Message: "Сделка не найдена",
		})
		return
	}

	mapping, err := h.ledger.Mint(c.Request.Context(), deal.MerchantURL, h.affiliateParams(deal.ID, assessment.IdentityHash))
	if err != nil {
		h.mintError(c, deal.ID, err)
		return
	}

	score := assessment.Score
	_ = h.attribution.Record(c.Request.Context(), &models.AttributionEvent{
		Kind:         models.EventClick,
		Token:        mapping.Token,
		DealID:       deal.ID,
		IdentityHash: assessment.IdentityHash,
		RiskScore:    &score,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		Referer:      c.Request.Referer(),
	})

	c.JSON(http.StatusOK, DealClickResponse{
		Success:     true,
		ShortID:     mapping.Token,
		RedirectURL: h.redirectURL(mapping.Token),
		RiskScore:   assessment.Score,
	})
}

// Match принимает агрегированные сигналы, считает риск и подбирает предложения.
// POST /api/v1/deals/match
func (h *DealHandler) Match(c *gin.Context) {
	var payload models.SignalPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		key, err := models.NormalizeIdentity(payload.AnonymousID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "missing_identity",
				Message: "Anonymous ID required",
			})
			return
		}
		identity = key
	}

	assessment := h.scorer.Score(identity, len(payload.Signals))

	award, err := h.points.AwardSignalBatch(c.Request.Context(), identity, assessment)
	if err != nil {
		h.logger.Error("Не удалось начислить баллы",
			zap.String("identity_hash", assessment.IdentityHash),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Не удалось начислить баллы",
		})
		return
	}

	candidates := h.catalog.Match(payload.Signals, service.DefaultMatchLimit)
	matches := make([]models.DealMatch, 0, len(candidates))
	for _, candidate := range candidates {
		deal := candidate.Deal
		mapping, err := h.ledger.Mint(c.Request.Context(), deal.MerchantURL, h.affiliateParams(deal.ID, assessment.IdentityHash))
		if err != nil {
			h.logger.Error("Не удалось выдать токен для предложения",
				zap.String("deal_id", deal.ID),
				zap.Error(err),
			)
			continue
		}

		matches = append(matches, models.DealMatch{
			Type:          "product",
			Title:         deal.Title,
			Description:   deal.Description,
			Merchant:      deal.MerchantName,
			Price:         deal.Price,
			OriginalPrice: deal.OriginalPrice,
			Discount:      deal.Discount,
			ImageURL:      deal.ImageURL,
			RedirectURL:   h.redirectURL(mapping.Token),
			Reason:        candidate.Reason,
			Commission:    deal.Commission,
		})
	}

	c.JSON(http.StatusOK, MatchResponse{
		Success: true,
		Data: MatchData{
			Matches:      matches,
			PointsEarned: award.Points,
			RiskScore:    assessment.Score,
			Flagged:      award.Flagged,
		},
		Timestamp: nowMillis(),
	})
}

// List сделки для текущей страницы по категории и оценке намерения.
// GET /api/v1/deals?domain=&category=&intent_score=
func (h *DealHandler) List(c *gin.Context) {
	intentScore, err := strconv.ParseFloat(c.Query("intent_score"), 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Параметр intent_score обязателен и должен быть числом",
		})
		return
	}
	category := c.Query("category")

	deals := h.catalog.List(category, intentScore)
	for i := range deals {
		deals[i].RedirectURL = h.cfg.BaseURL + "/api/v1/deals/" + deals[i].ID + "/click"
	}

	categories := []string{}
	if category != "" {
		categories = append(categories, category)
	}

	c.JSON(http.StatusOK, DealsResponse{
		Success:           true,
		Deals:             deals,
		TotalCount:        len(deals),
		MatchedCategories: categories,
		Timestamp:         nowMillis(),
	})
}

// Stats счётчики атрибуции по сделке.
// GET /api/v1/deals/:dealId/stats
func (h *DealHandler) Stats(c *gin.Context) {
	dealID := c.Param("dealId")
	if _, err := h.catalog.Get(dealID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "deal_not_found",
			Message: "Сделка не найдена",
		})
		return
	}

	stats, err := h.attribution.Stats(c.Request.Context(), dealID)
	if err != nil {
		h.logger.Error("Не удалось получить статистику атрибуции", zap.String("deal_id", dealID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Не удалось получить статистику",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *DealHandler) affiliateParams(dealID, identityHash string) []models.AffiliateParam {
	return []models.AffiliateParam{
		{Key: "aff_id", Value: h.cfg.AffiliateID},
		{Key: "deal_id", Value: dealID},
		{Key: "sub_id", Value: identityHash},
	}
}

func (h *DealHandler) redirectURL(token string) string {
	return h.cfg.BaseURL + "/r/" + token
}

func (h *DealHandler) mintError(c *gin.Context, dealID string, err error) {
	h.logger.Error("Не удалось выдать редирект-токен", zap.String("deal_id", dealID), zap.Error(err))

	if errors.Is(err, service.ErrTokenSpaceExhausted) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error:   "token_unavailable",
			Message: "Попробуйте позже",
		})
		return
	}
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "Не удалось создать ссылку",
	})
}
