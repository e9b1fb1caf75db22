package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/syncutil"
)

var (
	ErrTokenNotFound = errors.New("redirect token not found")
	ErrTokenExists   = errors.New("redirect token already exists")
)

// LedgerRepository хранилище маппингов токен -> итоговый URL.
// Insert никогда не перезаписывает живой токен и возвращает ErrTokenExists.
type LedgerRepository interface {
	Insert(ctx context.Context, mapping *models.RedirectMapping) error
	Get(ctx context.Context, token string) (*models.RedirectMapping, error)
	Take(ctx context.Context, token string) (*models.RedirectMapping, error)
	Len(ctx context.Context) (int64, error)
}

type ledgerShard struct {
	mu       sync.Mutex
	mappings map[string]*models.RedirectMapping
}

// MemoryLedgerRepository шардированная in-memory реализация с TTL и ёмкостью
type MemoryLedgerRepository struct {
	shards   []ledgerShard
	perShard int
	size     atomic.Int64
	now      func() time.Time
}

// NewMemoryLedgerRepository создаёт in-memory леджер. capacity <= 0 означает без ограничения.
func NewMemoryLedgerRepository(capacity int, now func() time.Time) *MemoryLedgerRepository {
	if now == nil {
		now = time.Now
	}
	r := &MemoryLedgerRepository{
		shards:   make([]ledgerShard, syncutil.ShardCount),
		perShard: syncutil.PerShard(capacity, syncutil.ShardCount),
		now:      now,
	}
	for i := range r.shards {
		r.shards[i].mappings = make(map[string]*models.RedirectMapping)
	}
	return r
}

func (r *MemoryLedgerRepository) shard(token string) *ledgerShard {
	return &r.shards[syncutil.ShardIndex(token, len(r.shards))]
}

func (r *MemoryLedgerRepository) Insert(ctx context.Context, mapping *models.RedirectMapping) error {
	s := r.shard(mapping.Token)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := r.now()
	if existing, ok := s.mappings[mapping.Token]; ok {
		if !existing.Expired(now) {
			return ErrTokenExists
		}
		r.deleteLocked(s, mapping.Token)
	}

	if r.perShard > 0 && len(s.mappings) >= r.perShard {
		r.evictLocked(s, now)
	}

	stored := *mapping
	s.mappings[mapping.Token] = &stored
	r.size.Add(1)
	return nil
}

func (r *MemoryLedgerRepository) Get(ctx context.Context, token string) (*models.RedirectMapping, error) {
	s := r.shard(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	if m.Expired(r.now()) {
		r.deleteLocked(s, token)
		return nil, ErrTokenNotFound
	}
	out := *m
	return &out, nil
}

// Take атомарно возвращает и удаляет маппинг (одноразовые токены)
func (r *MemoryLedgerRepository) Take(ctx context.Context, token string) (*models.RedirectMapping, error) {
	s := r.shard(token)
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[token]
	if !ok {
		return nil, ErrTokenNotFound
	}
	r.deleteLocked(s, token)
	if m.Expired(r.now()) {
		return nil, ErrTokenNotFound
	}
	return m, nil
}

func (r *MemoryLedgerRepository) Len(ctx context.Context) (int64, error) {
	return r.size.Load(), nil
}

// Sweep удаляет все истёкшие маппинги и возвращает их число
func (r *MemoryLedgerRepository) Sweep() int {
	now := r.now()
	removed := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for token, m := range s.mappings {
			if m.Expired(now) {
				r.deleteLocked(s, token)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// evictLocked освобождает место: сначала истёкшие, затем самый старый маппинг
func (r *MemoryLedgerRepository) evictLocked(s *ledgerShard, now time.Time) {
	var (
		oldestToken string
		oldest      time.Time
		found       bool
	)
	for token, m := range s.mappings {
		if m.Expired(now) {
			r.deleteLocked(s, token)
			continue
		}
		if !found || m.CreatedAt.Before(oldest) {
			oldestToken, oldest, found = token, m.CreatedAt, true
		}
	}
	if len(s.mappings) >= r.perShard && found {
		r.deleteLocked(s, oldestToken)
	}
}

func (r *MemoryLedgerRepository) deleteLocked(s *ledgerShard, token string) {
	delete(s.mappings, token)
	r.size.Add(-1)
}
