package service

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PointsService политика начисления баллов за пакет сигналов.
// Скорер только считает риск; решение о начислении принимается здесь.
type PointsService interface {
	AwardSignalBatch(ctx context.Context, identityKey string, assessment *models.RiskAssessment) (*models.PointsAward, error)
	Balance(ctx context.Context, identityKey string) (int64, error)
}

type pointsService struct {
	repo     repository.PointsRepository
	perBatch int
	logger   *zap.Logger
}

func NewPointsService(repo repository.PointsRepository, perBatch int, logger *zap.Logger) PointsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pointsService{
		repo:     repo,
		perBatch: perBatch,
		logger:   logger,
	}
}

// AwardSignalBatch начисляет баллы за пакет, если скор не превысил порог высокого риска
func (s *pointsService) AwardSignalBatch(ctx context.Context, identityKey string, assessment *models.RiskAssessment) (*models.PointsAward, error) {
	award := &models.PointsAward{RiskScore: assessment.Score}

	if assessment.HighRisk {
		award.Flagged = true
		metrics.PointsAwardedTotal.WithLabelValues("flagged").Inc()
		s.logger.Warn("Пакет сигналов помечен как подозрительный, баллы не начислены",
			zap.String("identity_hash", assessment.IdentityHash),
			zap.Int("risk_score", assessment.Score),
			zap.Any("factors", assessment.Factors),
		)
		return award, nil
	}

	if s.perBatch <= 0 {
		return award, nil
	}

	entry := &models.PointsEntry{
		ID:           uuid.NewString(),
		IdentityHash: models.HashIdentity(identityKey),
		Points:       s.perBatch,
		Type:         models.TransactionCredit,
		Source:       models.SourceDataContribution,
		Description:  "Browsing data contribution",
		CreatedAt:    time.Now(),
	}
	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to award points: %w", err)
	}

	award.Points = s.perBatch
	metrics.PointsAwardedTotal.WithLabelValues("awarded").Inc()
	return award, nil
}

func (s *pointsService) Balance(ctx context.Context, identityKey string) (int64, error) {
	return s.repo.Balance(ctx, models.HashIdentity(identityKey))
}
