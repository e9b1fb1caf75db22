package models

import (
	"time"
)

type AttributionEventKind string

const (
	EventClick            AttributionEventKind = "click"
	EventRedirectHit      AttributionEventKind = "redirect_hit"
	EventRedirectFallback AttributionEventKind = "redirect_fallback"
)

// AttributionEvent запись в журнал атрибуции
type AttributionEvent struct {
	ID           string               `json:"id"`
	Kind         AttributionEventKind `json:"kind"`
	Token        string               `json:"token"`
	DealID       string               `json:"deal_id,omitempty"`
	IdentityHash string               `json:"identity_hash,omitempty"`
	RiskScore    *int                 `json:"risk_score,omitempty"`
	IPAddress    string               `json:"ip_address"`
	UserAgent    string               `json:"user_agent"`
	Referer      string               `json:"referer"`
	OccurredAt   time.Time            `json:"occurred_at"`
}

type AttributionStats struct {
	DealID    string `json:"deal_id"`
	Clicks    int64  `json:"clicks"`
	Hits      int64  `json:"redirect_hits"`
	Fallbacks int64  `json:"redirect_fallbacks"`
}
