package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"go.uber.org/zap"
)

// AttributionRepository журнал событий атрибуции (клики и редиректы)
type AttributionRepository interface {
	Record(ctx context.Context, event *models.AttributionEvent) error
	Stats(ctx context.Context, dealID string) (*models.AttributionStats, error)
}

type attributionRepository struct {
	db *PostgresDB
}

func NewAttributionRepository(db *PostgresDB) AttributionRepository {
	return &attributionRepository{db: db}
}

func (r *attributionRepository) Record(ctx context.Context, event *models.AttributionEvent) error {
	query := `
		INSERT INTO attribution_events
			(id, kind, token, deal_id, identity_hash, risk_score, ip_address, user_agent, referer, occurred_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		event.ID,
		string(event.Kind),
		event.Token,
		event.DealID,
		event.IdentityHash,
		event.RiskScore,
		event.IPAddress,
		event.UserAgent,
		event.Referer,
		event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record attribution event: %w", err)
	}

	return nil
}

func (r *attributionRepository) Stats(ctx context.Context, dealID string) (*models.AttributionStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE kind = 'click'),
			COUNT(*) FILTER (WHERE kind = 'redirect_hit'),
			COUNT(*) FILTER (WHERE kind = 'redirect_fallback')
		FROM attribution_events
		WHERE deal_id = $1
	`

	stats := &models.AttributionStats{DealID: dealID}
	err := r.db.Pool.QueryRow(ctx, query, dealID).Scan(
		&stats.Clicks,
		&stats.Hits,
		&stats.Fallbacks,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get attribution stats: %w", err)
	}

	return stats, nil
}

// logAttributionRepository пишет события в лог и держит счётчики в памяти.
// Используется, когда PostgreSQL не настроен.
type logAttributionRepository struct {
	logger *zap.Logger

	mu    sync.RWMutex
	stats map[string]*models.AttributionStats
}

func NewLogAttributionRepository(logger *zap.Logger) AttributionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &logAttributionRepository{
		logger: logger,
		stats:  make(map[string]*models.AttributionStats),
	}
}

func (r *logAttributionRepository) Record(ctx context.Context, event *models.AttributionEvent) error {
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.String("token", event.Token),
		zap.String("deal_id", event.DealID),
		zap.String("identity_hash", event.IdentityHash),
		zap.String("ip", event.IPAddress),
		zap.Time("occurred_at", event.OccurredAt),
	}
	if event.RiskScore != nil {
		fields = append(fields, zap.Int("risk_score", *event.RiskScore))
	}
	r.logger.Info("attribution event", fields...)

	if event.DealID == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[event.DealID]
	if !ok {
		s = &models.AttributionStats{DealID: event.DealID}
		r.stats[event.DealID] = s
	}
	switch event.Kind {
	case models.EventClick:
		s.Clicks++
	case models.EventRedirectHit:
		s.Hits++
	case models.EventRedirectFallback:
		s.Fallbacks++
	}
	return nil
}

func (r *logAttributionRepository) Stats(ctx context.Context, dealID string) (*models.AttributionStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.stats[dealID]; ok {
		out := *s
		return &out, nil
	}
	return &models.AttributionStats{DealID: dealID}, nil
}
