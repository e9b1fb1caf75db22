package service_test

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScorer(clock *fakeClock) service.RiskScorer {
	return service.NewRiskScorer(service.RiskScorerConfig{Now: clock.Now}, nil)
}

// irregularGaps чередует интервалы 1s и 5s: дисперсия 4s², тайминг не срабатывает
func irregularGap(i int) time.Duration {
	if i%2 == 0 {
		return time.Second
	}
	return 5 * time.Second
}

// TestRiskScorer_ScoreAlwaysInRange проверяет, что скор всегда в [0,100]
func TestRiskScorer_ScoreAlwaysInRange(t *testing.T) {
	clock := newFakeClock()
	scorer := newTestScorer(clock)
	rnd := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		batch := rnd.Intn(400) - 100
		a := scorer.Score(fmt.Sprintf("user-%d", i%3), batch)
		assert.GreaterOrEqual(t, a.Score, 0)
		assert.LessOrEqual(t, a.Score, 100)
		clock.Advance(time.Duration(rnd.Intn(3000)) * time.Millisecond)
	}
}

// TestRiskScorer_FactorsPresent проверяет, что все слагаемые присутствуют в разбивке
func TestRiskScorer_FactorsPresent(t *testing.T) {
	scorer := newTestScorer(newFakeClock())

	a := scorer.Score("u1", 1)

	for _, name := range []string{
		models.FactorVelocity,
		models.FactorBatchSize,
		models.FactorBehavioralEntropy,
		models.FactorTimingRegularity,
		models.FactorFingerprint,
	} {
		assert.Contains(t, a.Factors, name)
	}
	assert.Equal(t, 0, a.Factors[models.FactorBehavioralEntropy])
	assert.Equal(t, 0, a.Factors[models.FactorFingerprint])
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, models.HashIdentity("u1"), a.IdentityHash)
}

// TestRiskScorer_VelocityBands проверяет точные границы 50/51 и 100/101
func TestRiskScorer_VelocityBands(t *testing.T) {
	clock := newFakeClock()
	scorer := newTestScorer(clock)

	var a *models.RiskAssessment
	for i := 1; i <= 101; i++ {
		a = scorer.Score("u1", 1)
		require.Equal(t, 0, a.Factors[models.FactorTimingRegularity], "call %d", i)

		switch i {
		case 50:
			assert.Equal(t, 0, a.Factors[models.FactorVelocity])
		case 51:
			assert.Equal(t, 20, a.Factors[models.FactorVelocity])
		case 100:
			assert.Equal(t, 100, a.EventsLastHour)
			assert.Equal(t, 20, a.Factors[models.FactorVelocity])
		case 101:
			assert.Equal(t, 101, a.EventsLastHour)
			assert.Equal(t, 40, a.Factors[models.FactorVelocity])
		}
		clock.Advance(irregularGap(i))
	}
	assert.Equal(t, 40, a.Score)
}

// TestRiskScorer_VelocityWindowIsOneHour проверяет, что события старше часа не считаются
func TestRiskScorer_VelocityWindowIsOneHour(t *testing.T) {
	clock := newFakeClock()
	scorer := newTestScorer(clock)

	for i := 0; i < 60; i++ {
		scorer.Score("u1", 1)
		clock.Advance(irregularGap(i))
	}
	clock.Advance(time.Hour)

	a := scorer.Score("u1", 1)
	assert.Equal(t, 1, a.EventsLastHour)
	assert.Equal(t, 61, a.EventsLastDay)
	assert.Equal(t, 0, a.Factors[models.FactorVelocity])
}

// TestRiskScorer_BatchSize проверяет порог размера пачки и нормализацию отрицательных значений
func TestRiskScorer_BatchSize(t *testing.T) {
	scorer := newTestScorer(newFakeClock())

	assert.Equal(t, 0, scorer.Score("a", 80).Factors[models.FactorBatchSize])
	assert.Equal(t, 10, scorer.Score("b", 81).Factors[models.FactorBatchSize])

	a := scorer.Score("c", -5)
	assert.Equal(t, 0, a.Factors[models.FactorBatchSize])
	assert.Equal(t, 0, a.Score)
}

// TestRiskScorer_Pruning проверяет границу 24-часового окна
func TestRiskScorer_Pruning(t *testing.T) {
	t.Run("событие старше 24h+1s удаляется", func(t *testing.T) {
		clock := newFakeClock()
		scorer := newTestScorer(clock)

		scorer.Score("u1", 1)
		clock.Advance(24*time.Hour + time.Second)

		a := scorer.Score("u1", 1)
		assert.Equal(t, 1, a.EventsLastDay)
	})

	t.Run("событие возрастом 23h59m59s сохраняется", func(t *testing.T) {
		clock := newFakeClock()
		scorer := newTestScorer(clock)

		scorer.Score("u1", 1)
		clock.Advance(23*time.Hour + 59*time.Minute + 59*time.Second)

		a := scorer.Score("u1", 1)
		assert.Equal(t, 2, a.EventsLastDay)
	})
}

// TestRiskScorer_TimingRegularity проверяет детектор равномерных интервалов
func TestRiskScorer_TimingRegularity(t *testing.T) {
	t.Run("11 событий через 5s дают +20", func(t *testing.T) {
		clock := newFakeClock()
		scorer := newTestScorer(clock)

		var a *models.RiskAssessment
		for i := 0; i < 11; i++ {
			a = scorer.Score("bot", 1)
			clock.Advance(5 * time.Second)
		}
		assert.Equal(t, 20, a.Factors[models.FactorTimingRegularity])
		assert.Equal(t, 20, a.Score)
	})

	t.Run("10 равномерных событий недостаточно", func(t *testing.T) {
		clock := newFakeClock()
		scorer := newTestScorer(clock)

		var a *models.RiskAssessment
		for i := 0; i < 10; i++ {
			a = scorer.Score("bot", 1)
			clock.Advance(5 * time.Second)
		}
		assert.Equal(t, 0, a.Factors[models.FactorTimingRegularity])
	})

	t.Run("нерегулярные интервалы не дают вклада", func(t *testing.T) {
		clock := newFakeClock()
		scorer := newTestScorer(clock)

		gaps := []int{1, 7, 2, 9, 3, 8, 1, 6, 2, 10}
		a := scorer.Score("human", 1)
		for _, g := range gaps {
			clock.Advance(time.Duration(g) * time.Second)
			a = scorer.Score("human", 1)
		}
		assert.Equal(t, 11, a.EventsLastDay)
		assert.Equal(t, 0, a.Factors[models.FactorTimingRegularity])
	})

	t.Run("порог дисперсии настраивается", func(t *testing.T) {
		clock := newFakeClock()
		scorer := service.NewRiskScorer(service.RiskScorerConfig{
			Now:               clock.Now,
			VarianceThreshold: 5,
		}, nil)

		var a *models.RiskAssessment
		for i := 0; i < 12; i++ {
			a = scorer.Score("u1", 1)
			clock.Advance(irregularGap(i))
		}
		// дисперсия 4s² < 5s²
		assert.Equal(t, 20, a.Factors[models.FactorTimingRegularity])
	})
}

// TestRiskScorer_EndToEnd 101 вызов за час от одного ключа
func TestRiskScorer_EndToEnd(t *testing.T) {
	clock := newFakeClock()
	scorer := newTestScorer(clock)

	var a *models.RiskAssessment
	for i := 0; i < 101; i++ {
		a = scorer.Score("u1", 1)
		clock.Advance(30 * time.Second)
	}

	assert.Equal(t, 40, a.Factors[models.FactorVelocity])
	assert.Equal(t, 20, a.Factors[models.FactorTimingRegularity])
	assert.Equal(t, 60, a.Score)
	assert.LessOrEqual(t, a.Score, 100)
	assert.False(t, a.HighRisk)
}

// TestRiskScorer_HighRiskThreshold проверяет флаг высокого риска
func TestRiskScorer_HighRiskThreshold(t *testing.T) {
	clock := newFakeClock()
	scorer := service.NewRiskScorer(service.RiskScorerConfig{
		Now:           clock.Now,
		HighThreshold: 60,
	}, nil)

	var a *models.RiskAssessment
	for i := 0; i < 101; i++ {
		a = scorer.Score("u1", 90)
		clock.Advance(time.Second)
	}

	// 40 + 10 + 20
	assert.Equal(t, 70, a.Score)
	assert.True(t, a.HighRisk)
}

// TestRiskScorer_MaxEvents проверяет ограничение длины истории
func TestRiskScorer_MaxEvents(t *testing.T) {
	clock := newFakeClock()
	scorer := service.NewRiskScorer(service.RiskScorerConfig{
		Now:       clock.Now,
		MaxEvents: 20,
	}, nil)

	var a *models.RiskAssessment
	for i := 0; i < 50; i++ {
		a = scorer.Score("u1", 1)
		clock.Advance(irregularGap(i))
	}
	assert.Equal(t, 20, a.EventsLastDay)
}

// TestRiskScorer_MaxIdentities проверяет, что число ключей ограничено
func TestRiskScorer_MaxIdentities(t *testing.T) {
	clock := newFakeClock()
	scorer := service.NewRiskScorer(service.RiskScorerConfig{
		Now:           clock.Now,
		MaxIdentities: 256,
	}, nil)

	for i := 0; i < 5000; i++ {
		scorer.Score(fmt.Sprintf("attacker-%d", i), 1)
		clock.Advance(time.Millisecond)
	}

	assert.LessOrEqual(t, scorer.Tracked(), 256)
	assert.Greater(t, scorer.Tracked(), 0)
}

// TestRiskScorer_Sweep проверяет фоновую очистку устаревших историй
func TestRiskScorer_Sweep(t *testing.T) {
	clock := newFakeClock()
	scorer := service.NewRiskScorer(service.RiskScorerConfig{
		Now:           clock.Now,
		SweepInterval: 10 * time.Millisecond,
	}, nil)

	for i := 0; i < 10; i++ {
		scorer.Score(fmt.Sprintf("u-%d", i), 1)
	}
	require.Equal(t, 10, scorer.Tracked())

	scorer.Start()
	defer scorer.Stop()

	clock.Advance(25 * time.Hour)
	assert.Eventually(t, func() bool {
		return scorer.Tracked() == 0
	}, time.Second, 10*time.Millisecond)
}

// TestRiskScorer_ConcurrentAccess проверяет отсутствие потерянных событий при конкурентной записи
func TestRiskScorer_ConcurrentAccess(t *testing.T) {
	scorer := service.NewRiskScorer(service.RiskScorerConfig{}, nil)

	var wg sync.WaitGroup
	for g := 0; g < 20; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				scorer.Score("shared", 1)
				scorer.Score(fmt.Sprintf("own-%d", id), 1)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 21, scorer.Tracked())
	a := scorer.Score("shared", 1)
	assert.Equal(t, 501, a.EventsLastDay)
	assert.LessOrEqual(t, a.Score, 100)
}
