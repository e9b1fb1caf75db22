package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/redis/go-redis/v9"
)

const ledgerKeyPrefix = "redirect:"

// redisLedgerRepository хранит маппинги в Redis, TTL и вытеснение делает сам Redis
type redisLedgerRepository struct {
	redis *RedisDB
	now   func() time.Time
}

func NewRedisLedgerRepository(redis *RedisDB) LedgerRepository {
	return &redisLedgerRepository{redis: redis, now: time.Now}
}

func (r *redisLedgerRepository) Insert(ctx context.Context, mapping *models.RedirectMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	var ttl time.Duration
	if !mapping.ExpiresAt.IsZero() {
		ttl = mapping.ExpiresAt.Sub(r.now())
		if ttl <= 0 {
			return nil
		}
	}

	// SET NX: коллизия обнаруживается атомарно на стороне Redis
	ok, err := r.redis.Client.SetNX(ctx, r.key(mapping.Token), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store mapping: %w", err)
	}
	if !ok {
		return ErrTokenExists
	}
	return nil
}

func (r *redisLedgerRepository) Get(ctx context.Context, token string) (*models.RedirectMapping, error) {
	data, err := r.redis.Client.Get(ctx, r.key(token)).Bytes()
	return r.decode(data, err)
}

func (r *redisLedgerRepository) Take(ctx context.Context, token string) (*models.RedirectMapping, error) {
	data, err := r.redis.Client.GetDel(ctx, r.key(token)).Bytes()
	return r.decode(data, err)
}

// Len считает ключи леджера через SCAN, без блокировки Redis
func (r *redisLedgerRepository) Len(ctx context.Context) (int64, error) {
	var (
		cursor uint64
		total  int64
	)
	for {
		keys, next, err := r.redis.Client.Scan(ctx, cursor, ledgerKeyPrefix+"*", 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to count mappings: %w", err)
		}
		total += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return total, nil
		}
	}
}

func (r *redisLedgerRepository) decode(data []byte, err error) (*models.RedirectMapping, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to load mapping: %w", err)
	}

	var mapping models.RedirectMapping
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mapping: %w", err)
	}
	return &mapping, nil
}

func (r *redisLedgerRepository) key(token string) string {
	return ledgerKeyPrefix + token
}
