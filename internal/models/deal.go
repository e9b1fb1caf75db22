package models

type Deal struct {
	ID              string   `json:"id"`
	MerchantName    string   `json:"merchant_name"`
	MerchantDomain  string   `json:"merchant_domain"`
	MerchantURL     string   `json:"-"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	DiscountPercent *int     `json:"discount_percent,omitempty"`
	Category        string   `json:"category"`
	Keywords        []string `json:"-"`
	ThumbnailURL    string   `json:"thumbnail_url,omitempty"`
	RedirectURL     string   `json:"redirect_url"`
	MinIntentScore  float64  `json:"min_intent_score"`
	PointsReward    int      `json:"points_reward"`
	DealScore       float64  `json:"deal_score"`

	// Поля карточки товара для /deals/match
	Price         string `json:"-"`
	OriginalPrice string `json:"-"`
	Discount      string `json:"-"`
	ImageURL      string `json:"-"`
	Commission    string `json:"-"`
}

// Signal агрегированный интерес пользователя, присланный расширением
type Signal struct {
	Category    string   `json:"category" binding:"required"`
	Entities    []string `json:"entities"`
	IntentScore float64  `json:"intentScore"`
	PageCount   int      `json:"pageCount"`
	TimeWindow  string   `json:"timeWindow"`
}

type SignalPayload struct {
	AnonymousID string   `json:"anonymousId"`
	Signals     []Signal `json:"signals" binding:"dive"`
	Timestamp   int64    `json:"timestamp"`
}

type DealMatch struct {
	Type          string `json:"type"`
	Title         string `json:"title"`
	Description   string `json:"description,omitempty"`
	Merchant      string `json:"merchant"`
	Price         string `json:"price,omitempty"`
	OriginalPrice string `json:"originalPrice,omitempty"`
	Discount      string `json:"discount,omitempty"`
	ImageURL      string `json:"imageUrl,omitempty"`
	RedirectURL   string `json:"redirectUrl"`
	Reason        string `json:"reason"`
	Commission    string `json:"commission,omitempty"`
	ExpiresAt     *int64 `json:"expiresAt,omitempty"`
}
