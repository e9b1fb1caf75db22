package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/SergeiKhy/brainplus-backend/internal/service/mocks"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributionProcessor_RecordsEvents(t *testing.T) {
	repo := mocks.NewMockAttributionRepository()
	proc := service.NewAttributionProcessor(repo, 2, 100, nil)
	proc.Start()
	defer proc.Stop()

	ctx := context.Background()
	kinds := []models.AttributionEventKind{
		models.EventClick,
		models.EventClick,
		models.EventRedirectHit,
		models.EventRedirectFallback,
	}
	for _, kind := range kinds {
		require.NoError(t, proc.Record(ctx, &models.AttributionEvent{Kind: kind, DealID: "deal_001", Token: "tok"}))
	}

	require.Eventually(t, func() bool {
		return len(repo.Events()) == len(kinds)
	}, time.Second, 10*time.Millisecond)

	for _, e := range repo.Events() {
		assert.NotEmpty(t, e.ID)
		assert.False(t, e.OccurredAt.IsZero())
	}

	stats, err := proc.Stats(ctx, "deal_001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Clicks)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Fallbacks)
}

// TestAttributionProcessor_RetriesOnFailure проверяет повторные попытки записи
func TestAttributionProcessor_RetriesOnFailure(t *testing.T) {
	repo := mocks.NewMockAttributionRepository()
	repo.FailTimes = 2
	proc := service.NewAttributionProcessor(repo, 1, 10, nil)
	proc.Start()
	defer proc.Stop()

	require.NoError(t, proc.Record(context.Background(), &models.AttributionEvent{Kind: models.EventClick, DealID: "deal_001"}))

	require.Eventually(t, func() bool {
		return len(repo.Events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

// TestAttributionProcessor_FullBufferDrops полный буфер не блокирует вызывающего
func TestAttributionProcessor_FullBufferDrops(t *testing.T) {
	repo := mocks.NewMockAttributionRepository()
	// Воркеры не запущены: буфер на 2 события заполнится
	proc := service.NewAttributionProcessor(repo, 1, 2, nil)

	before := testutil.ToFloat64(metrics.AttributionEventsDroppedTotal)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.NoError(t, proc.Record(ctx, &models.AttributionEvent{Kind: models.EventClick}))
	}

	assert.Equal(t, before+3, testutil.ToFloat64(metrics.AttributionEventsDroppedTotal))
	assert.Equal(t, service.ChannelStats{BufferSize: 2, BufferUsed: 2, WorkerCount: 1}, proc.ChannelStats())

	// Stop дописывает принятые события
	proc.Stop()
	assert.Len(t, repo.Events(), 2)
}

func TestAttributionProcessor_LogSink(t *testing.T) {
	repo := repository.NewLogAttributionRepository(nil)
	proc := service.NewAttributionProcessor(repo, 1, 10, nil)
	proc.Start()

	ctx := context.Background()
	score := 40
	require.NoError(t, proc.Record(ctx, &models.AttributionEvent{Kind: models.EventClick, DealID: "deal_001", RiskScore: &score}))
	require.NoError(t, proc.Record(ctx, &models.AttributionEvent{Kind: models.EventRedirectFallback, Token: "unknown"}))
	proc.Stop()

	stats, err := proc.Stats(ctx, "deal_001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Clicks)
	assert.Equal(t, int64(0), stats.Fallbacks)
}
