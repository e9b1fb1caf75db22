package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
)

// PointsRepository append-only журнал баллов
type PointsRepository interface {
	Append(ctx context.Context, entry *models.PointsEntry) error
	Balance(ctx context.Context, identityHash string) (int64, error)
}

type pointsRepository struct {
	db *PostgresDB
}

func NewPointsRepository(db *PostgresDB) PointsRepository {
	return &pointsRepository{db: db}
}

func (r *pointsRepository) Append(ctx context.Context, entry *models.PointsEntry) error {
	query := `
		INSERT INTO points_ledger (id, identity_hash, points, type, source, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		entry.ID,
		entry.IdentityHash,
		entry.Points,
		string(entry.Type),
		entry.Source,
		entry.Description,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append points entry: %w", err)
	}

	return nil
}

func (r *pointsRepository) Balance(ctx context.Context, identityHash string) (int64, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = 'debit' THEN -points ELSE points END), 0)
		FROM points_ledger
		WHERE identity_hash = $1
	`

	var balance int64
	if err := r.db.Pool.QueryRow(ctx, query, identityHash).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to get points balance: %w", err)
	}

	return balance, nil
}

type memoryPointsRepository struct {
	mu      sync.RWMutex
	entries map[string][]models.PointsEntry
}

func NewMemoryPointsRepository() PointsRepository {
	return &memoryPointsRepository{
		entries: make(map[string][]models.PointsEntry),
	}
}

func (r *memoryPointsRepository) Append(ctx context.Context, entry *models.PointsEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.IdentityHash] = append(r.entries[entry.IdentityHash], *entry)
	return nil
}

func (r *memoryPointsRepository) Balance(ctx context.Context, identityHash string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var balance int64
	for _, e := range r.entries[identityHash] {
		if e.Type == models.TransactionDebit {
			balance -= int64(e.Points)
		} else {
			balance += int64(e.Points)
		}
	}
	return balance, nil
}
