package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
)

// MockLedgerRepository implements repository.LedgerRepository for testing
type MockLedgerRepository struct {
	mu       sync.RWMutex
	mappings map[string]*models.RedirectMapping

	// ForcedCollisions сколько первых Insert вернут ErrTokenExists
	ForcedCollisions int
	// Err если задана, возвращается всеми методами
	Err error

	InsertCalls int
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{
		mappings: make(map[string]*models.RedirectMapping),
	}
}

func (m *MockLedgerRepository) Insert(ctx context.Context, mapping *models.RedirectMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.InsertCalls++
	if m.Err != nil {
		return m.Err
	}
	if m.ForcedCollisions > 0 {
		m.ForcedCollisions--
		return repository.ErrTokenExists
	}
	if _, exists := m.mappings[mapping.Token]; exists {
		return repository.ErrTokenExists
	}

	stored := *mapping
	m.mappings[mapping.Token] = &stored
	return nil
}

func (m *MockLedgerRepository) Get(ctx context.Context, token string) (*models.RedirectMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.Err != nil {
		return nil, m.Err
	}
	mapping, exists := m.mappings[token]
	if !exists {
		return nil, repository.ErrTokenNotFound
	}
	return mapping, nil
}

func (m *MockLedgerRepository) Take(ctx context.Context, token string) (*models.RedirectMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	mapping, exists := m.mappings[token]
	if !exists {
		return nil, repository.ErrTokenNotFound
	}
	delete(m.mappings, token)
	return mapping, nil
}

func (m *MockLedgerRepository) Len(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.mappings)), nil
}

func (m *MockLedgerRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings = make(map[string]*models.RedirectMapping)
	m.ForcedCollisions = 0
	m.Err = nil
	m.InsertCalls = 0
}

// MockAttributionRepository implements repository.AttributionRepository for testing
type MockAttributionRepository struct {
	mu     sync.RWMutex
	events []*models.AttributionEvent

	// FailTimes сколько первых Record вернут ошибку
	FailTimes int
}

func NewMockAttributionRepository() *MockAttributionRepository {
	return &MockAttributionRepository{}
}

func (m *MockAttributionRepository) Record(ctx context.Context, event *models.AttributionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailTimes > 0 {
		m.FailTimes--
		return errors.New("db unavailable")
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockAttributionRepository) Stats(ctx context.Context, dealID string) (*models.AttributionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.AttributionStats{DealID: dealID}
	for _, e := range m.events {
		if e.DealID != dealID {
			continue
		}
		switch e.Kind {
		case models.EventClick:
			stats.Clicks++
		case models.EventRedirectHit:
			stats.Hits++
		case models.EventRedirectFallback:
			stats.Fallbacks++
		}
	}
	return stats, nil
}

// Events возвращает копию записанных событий
func (m *MockAttributionRepository) Events() []*models.AttributionEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.AttributionEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *MockAttributionRepository) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
	m.FailTimes = 0
}
