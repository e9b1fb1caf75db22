package handler

import (
	"net/http"
	"net/url"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/gin-gonic/gin"
)

type RedirectHandler struct {
	ledger      service.RedirectLedger
	attribution service.AttributionProcessor
}

func NewRedirectHandler(ledger service.RedirectLedger, attribution service.AttributionProcessor) *RedirectHandler {
	return &RedirectHandler{
		ledger:      ledger,
		attribution: attribution,
	}
}

// Redirect серверный редирект на партнёрскую ссылку. Всегда 302, даже для неизвестного токена.
// GET /r/:token
func (h *RedirectHandler) Redirect(c *gin.Context) {
	token := c.Param("token")
	res := h.ledger.Resolve(c.Request.Context(), token)

	kind := models.EventRedirectHit
	dealID := ""
	if res.Outcome == models.OutcomeHit {
		dealID = dealIDFromURL(res.URL)
	} else {
		kind = models.EventRedirectFallback
	}

	_ = h.attribution.Record(c.Request.Context(), &models.AttributionEvent{
		Kind:      kind,
		Token:     token,
		DealID:    dealID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
	})

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, res.URL)
}

// dealIDFromURL достаёт deal_id из партнёрских параметров, которые сервис сам дописал при выдаче
func dealIDFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Query().Get("deal_id")
}
