package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
)

var ErrDealNotFound = errors.New("сделка не найдена")

// DefaultMatchLimit максимум предложений в ответе /deals/match
const DefaultMatchLimit = 2

// DealCandidate найденный по сигналам товар и объяснение, почему он подобран
type DealCandidate struct {
	Deal   *models.Deal
	Reason string
}

// DealCatalog источник сделок. Пока статический, позже заменится базой с семантическим поиском.
type DealCatalog interface {
	Get(dealID string) (*models.Deal, error)
	List(category string, intentScore float64) []models.Deal
	Match(signals []models.Signal, limit int) []DealCandidate
}

type staticDealCatalog struct {
	byID     map[string]*models.Deal
	listed   []*models.Deal // выдаются в GET /deals
	products []*models.Deal // кандидаты для /deals/match, в порядке приоритета
}

// NewStaticDealCatalog каталог на заданных сделках и товарах
func NewStaticDealCatalog(listed, products []models.Deal) DealCatalog {
	c := &staticDealCatalog{byID: make(map[string]*models.Deal)}
	for i := range listed {
		d := listed[i]
		c.byID[d.ID] = &d
		c.listed = append(c.listed, &d)
	}
	for i := range products {
		d := products[i]
		c.byID[d.ID] = &d
		c.products = append(c.products, &d)
	}
	return c
}

// NewDefaultDealCatalog каталог с альфа-набором сделок
func NewDefaultDealCatalog() DealCatalog {
	return NewStaticDealCatalog(defaultListedDeals(), defaultProducts())
}

func (c *staticDealCatalog) Get(dealID string) (*models.Deal, error) {
	d, ok := c.byID[dealID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDealNotFound, dealID)
	}
	out := *d
	return &out, nil
}

// List сделки, чей минимальный порог намерения не выше intentScore.
// Пустая категория не фильтрует.
func (c *staticDealCatalog) List(category string, intentScore float64) []models.Deal {
	out := make([]models.Deal, 0, len(c.listed))
	for _, d := range c.listed {
		if intentScore < d.MinIntentScore {
			continue
		}
		if category != "" && !strings.EqualFold(category, d.Category) {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// Match подбирает товары: категория сигнала совпадает и хотя бы одна сущность есть в ключевых словах товара
func (c *staticDealCatalog) Match(signals []models.Signal, limit int) []DealCandidate {
	if limit <= 0 {
		limit = DefaultMatchLimit
	}

	var out []DealCandidate
	for _, signal := range signals {
		category := strings.ToLower(strings.TrimSpace(signal.Category))
		entities := normalizeEntities(signal.Entities)
		if len(entities) == 0 {
			continue
		}

		for _, p := range c.products {
			if p.Category != category || !hasKeyword(p.Keywords, entities) {
				continue
			}
			out = append(out, DealCandidate{Deal: p, Reason: matchReason(signal.Entities)})
			if len(out) == limit {
				return out
			}
		}
	}
	return out
}

func normalizeEntities(entities []string) map[string]struct{} {
	out := make(map[string]struct{}, len(entities))
	for _, e := range entities {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			out[e] = struct{}{}
		}
	}
	return out
}

func hasKeyword(keywords []string, entities map[string]struct{}) bool {
	for _, kw := range keywords {
		if _, ok := entities[kw]; ok {
			return true
		}
	}
	return false
}

// matchReason объяснение по первым двум сущностям сигнала
func matchReason(entities []string) string {
	if len(entities) > 2 {
		entities = entities[:2]
	}
	return fmt.Sprintf("Based on your interest in '%s'", strings.Join(entities, ", "))
}

func intPtr(v int) *int {
	return &v
}

func defaultListedDeals() []models.Deal {
	return []models.Deal{
		{
			ID:              "deal_001",
			MerchantName:    "Amazon",
			MerchantDomain:  "amazon.com",
			MerchantURL:     "https://www.amazon.com/electronics",
			Title:           "20% Off Electronics",
			Description:     "Get 20% off on select electronics. Limited time offer!",
			DiscountPercent: intPtr(20),
			Category:        "electronics",
			MinIntentScore:  0.7,
			PointsReward:    50,
			DealScore:       0.9,
		},
	}
}

func defaultProducts() []models.Deal {
	audio := []string{"headphones", "audio", "wireless", "noise", "sound"}
	running := []string{"running", "shoes", "workout", "exercise", "nike"}
	drinkware := []string{"bottle", "cup", "water", "drink", "insulated", "baby", "toddler", "sippy"}

	return []models.Deal{
		{
			ID:             "sony-xm5",
			MerchantName:   "Amazon",
			MerchantDomain: "amazon.com",
			MerchantURL:    "https://www.amazon.com/dp/B09XS7JWHH",
			Title:          "Sony WH-1000XM5 Wireless Headphones",
			Description:    "Industry-leading noise cancellation",
			Category:       "electronics",
			Keywords:       audio,
			Price:          "$348",
			OriginalPrice:  "$399",
			Discount:       "13% off",
			ImageURL:       "https://m.media-amazon.com/images/I/51K0kOPmF9L._AC_SL1500_.jpg",
			Commission:     "5%",
		},
		{
			ID:             "airpods-pro",
			MerchantName:   "Apple",
			MerchantDomain: "apple.com",
			MerchantURL:    "https://www.apple.com/airpods-pro/",
			Title:          "Apple AirPods Pro (2nd Generation)",
			Description:    "Active Noise Cancellation and Adaptive Transparency",
			Category:       "electronics",
			Keywords:       audio,
			Price:          "$249",
			OriginalPrice:  "$299",
			Discount:       "$50 off",
			Commission:     "3%",
		},
		{
			ID:             "nike-pegasus",
			MerchantName:   "Nike",
			MerchantDomain: "nike.com",
			MerchantURL:    "https://www.nike.com/t/pegasus-40",
			Title:          "Nike Pegasus 40 Running Shoes",
			Description:    "Responsive cushioning for any run",
			Category:       "fitness",
			Keywords:       running,
			Price:          "$130",
			OriginalPrice:  "$140",
			Discount:       "$10 off",
			Commission:     "8%",
		},
		{
			ID:             "owala-bottle",
			MerchantName:   "Amazon",
			MerchantDomain: "amazon.com",
			MerchantURL:    "https://www.amazon.com/dp/B0BZYCJK89",
			Title:          "Owala FreeSip Insulated Water Bottle",
			Description:    "32 oz stainless steel with FreeSip spout",
			Category:       "general",
			Keywords:       drinkware,
			Price:          "$27.99",
			OriginalPrice:  "$37.99",
			Discount:       "26% off",
			Commission:     "4%",
		},
		{
			ID:             "contigo-mug",
			MerchantName:   "Target",
			MerchantDomain: "target.com",
			MerchantURL:    "https://www.target.com/s/contigo+autoseal",
			Title:          "Contigo AUTOSEAL Travel Mug",
			Description:    "Vacuum-insulated stainless steel, 20 oz",
			Category:       "general",
			Keywords:       drinkware,
			Price:          "$19.99",
			OriginalPrice:  "$24.99",
			Discount:       "20% off",
			Commission:     "3%",
		},
	}
}
