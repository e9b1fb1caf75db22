package models

import (
	"time"
)

// AffiliateParam одна пара ключ-значение партнёрского параметра.
// Порядок в срезе сохраняется для повторяющихся ключей.
type AffiliateParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type RedirectMapping struct {
	Token     string    `json:"token"`
	FinalURL  string    `json:"final_url"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired сообщает, истёк ли срок жизни маппинга на момент now
func (m *RedirectMapping) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

type ResolutionOutcome string

const (
	OutcomeHit      ResolutionOutcome = "hit"
	OutcomeFallback ResolutionOutcome = "fallback"
	OutcomeError    ResolutionOutcome = "error"
)

// Resolution результат разрешения токена. URL заполнен всегда.
type Resolution struct {
	Token   string            `json:"token"`
	URL     string            `json:"url"`
	Outcome ResolutionOutcome `json:"outcome"`
}
