package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/syncutil"
	"go.uber.org/zap"
)

// Окна и пороги скоринга
const (
	historyWindow  = 24 * time.Hour
	velocityWindow = time.Hour

	velocityHighCount = 100
	velocityMidCount  = 50
	batchSizeLimit    = 80
	timingMinEvents   = 10
)

// Веса слагаемых. Энтропия и отпечаток пока всегда дают 0.
const (
	weightVelocityHigh    = 40
	weightVelocityMid     = 20
	weightBatchSize       = 10
	weightBehavioral      = 30
	weightTimingRegular   = 20
	weightFingerprint     = 5
	maxScore              = 100
	defaultHighThreshold  = 80
	defaultVarianceThresh = 1.0
)

// RiskScorerConfig параметры скорера
type RiskScorerConfig struct {
	HighThreshold     int
	VarianceThreshold float64 // секунды²
	MaxIdentities     int     // 0 = без ограничения
	MaxEvents         int     // 0 = без ограничения
	SweepInterval     time.Duration
	Now               func() time.Time
}

// RiskScorer оценивает риск автоматизации по поведению одного анонимного клиента
type RiskScorer interface {
	Score(identityKey string, batchSize int) *models.RiskAssessment
	Tracked() int
	Start()
	Stop()
}

type identityHistory struct {
	events []time.Time // по возрастанию
}

func (h *identityHistory) last() time.Time {
	if len(h.events) == 0 {
		return time.Time{}
	}
	return h.events[len(h.events)-1]
}

type historyShard struct {
	mu        sync.Mutex
	histories map[string]*identityHistory
}

// riskScorer хранит историю событий в шардах: разные ключи не блокируют друг друга
type riskScorer struct {
	cfg      RiskScorerConfig
	shards   []historyShard
	perShard int
	tracked  atomic.Int64
	logger   *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewRiskScorer создаёт скорер. Пустые поля конфига заменяются значениями по умолчанию.
func NewRiskScorer(cfg RiskScorerConfig, logger *zap.Logger) RiskScorer {
	if cfg.HighThreshold <= 0 {
		cfg.HighThreshold = defaultHighThreshold
	}
	if cfg.VarianceThreshold <= 0 {
		cfg.VarianceThreshold = defaultVarianceThresh
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &riskScorer{
		cfg:      cfg,
		shards:   make([]historyShard, syncutil.ShardCount),
		perShard: syncutil.PerShard(cfg.MaxIdentities, syncutil.ShardCount),
		logger:   logger,
		stop:     make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].histories = make(map[string]*identityHistory)
	}
	return s
}

// Score добавляет событие в историю ключа и считает скор в [0,100].
// Вызов мутирует историю, поэтому два вызова подряд дают разный результат.
func (s *riskScorer) Score(identityKey string, batchSize int) *models.RiskAssessment {
	if batchSize < 0 {
		batchSize = 0
	}

	shard := &s.shards[syncutil.ShardIndex(identityKey, len(s.shards))]
	shard.mu.Lock()

	// now берём под локом: история одного ключа остаётся отсортированной
	now := s.cfg.Now()

	h, ok := shard.histories[identityKey]
	if !ok {
		s.ensureCapacity(shard)
		h = &identityHistory{}
		shard.histories[identityKey] = h
		s.tracked.Add(1)
	}

	h.events = append(h.events, now)
	h.events = pruneHistory(h.events, now)
	if s.cfg.MaxEvents > 0 && len(h.events) > s.cfg.MaxEvents {
		h.events = append(h.events[:0], h.events[len(h.events)-s.cfg.MaxEvents:]...)
	}

	perHour := countSince(h.events, now, velocityWindow)
	perDay := len(h.events)
	factors := map[string]int{
		models.FactorVelocity:          velocityFactor(perHour),
		models.FactorBatchSize:         batchSizeFactor(batchSize),
		models.FactorBehavioralEntropy: behavioralEntropyFactor(h.events),
		models.FactorTimingRegularity:  timingRegularityFactor(h.events, s.cfg.VarianceThreshold),
		models.FactorFingerprint:       fingerprintFactor(),
	}
	shard.mu.Unlock()

	score := 0
	for _, v := range factors {
		score += v
	}
	score = clampScore(score)

	assessment := &models.RiskAssessment{
		IdentityHash:   models.HashIdentity(identityKey),
		Score:          score,
		Factors:        factors,
		EventsLastHour: perHour,
		EventsLastDay:  perDay,
		HighRisk:       score > s.cfg.HighThreshold,
		EvaluatedAt:    now,
	}

	metrics.RiskScores.Observe(float64(score))
	if assessment.HighRisk {
		metrics.RiskHighTotal.Inc()
	}
	metrics.RiskTrackedIdentities.Set(float64(s.tracked.Load()))

	return assessment
}

// Tracked возвращает число ключей с живой историей
func (s *riskScorer) Tracked() int {
	return int(s.tracked.Load())
}

// Start запускает периодическую очистку устаревших историй
func (s *riskScorer) Start() {
	s.wg.Add(1)
	go s.sweepLoop()
}

// Stop останавливает очистку
func (s *riskScorer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.wg.Wait()
}

func (s *riskScorer) sweepLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.sweep(); removed > 0 {
				s.logger.Debug("Удалены неактивные истории событий", zap.Int("removed", removed))
			}
		}
	}
}

// sweep удаляет ключи, у которых все события старше окна истории
func (s *riskScorer) sweep() int {
	now := s.cfg.Now()
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		for key, h := range shard.histories {
			if now.Sub(h.last()) >= historyWindow {
				delete(shard.histories, key)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	s.tracked.Add(int64(-removed))
	metrics.RiskTrackedIdentities.Set(float64(s.tracked.Load()))
	return removed
}

// ensureCapacity вытесняет самый давно активный ключ, если шард заполнен (вызывается под локом)
func (s *riskScorer) ensureCapacity(shard *historyShard) {
	if s.perShard == 0 || len(shard.histories) < s.perShard {
		return
	}

	var (
		oldestKey string
		oldest    time.Time
		found     bool
	)
	for key, h := range shard.histories {
		if last := h.last(); !found || last.Before(oldest) {
			oldestKey, oldest, found = key, last, true
		}
	}
	if found {
		delete(shard.histories, oldestKey)
		s.tracked.Add(-1)
	}
}

// pruneHistory оставляет только события строго моложе 24 часов
func pruneHistory(events []time.Time, now time.Time) []time.Time {
	start := 0
	for start < len(events) && now.Sub(events[start]) >= historyWindow {
		start++
	}
	if start == 0 {
		return events
	}
	return append(events[:0], events[start:]...)
}

// countSince считает события не старше window (история отсортирована)
func countSince(events []time.Time, now time.Time, window time.Duration) int {
	n := 0
	for i := len(events) - 1; i >= 0; i-- {
		if now.Sub(events[i]) >= window {
			break
		}
		n++
	}
	return n
}

func velocityFactor(perHour int) int {
	switch {
	case perHour > velocityHighCount:
		return weightVelocityHigh
	case perHour > velocityMidCount:
		return weightVelocityMid
	default:
		return 0
	}
}

func batchSizeFactor(batchSize int) int {
	if batchSize > batchSizeLimit {
		return weightBatchSize
	}
	return 0
}

// behavioralEntropyFactor зарезервирован под анализ мыши, скролла и навигации (до weightBehavioral)
func behavioralEntropyFactor(_ []time.Time) int {
	return 0
}

// timingRegularityFactor: почти постоянные интервалы между событиями выдают скрипт
func timingRegularityFactor(events []time.Time, threshold float64) int {
	if len(events) <= timingMinEvents {
		return 0
	}
	if intervalVariance(events) < threshold {
		return weightTimingRegular
	}
	return 0
}

// fingerprintFactor не используется: браузеры с защитой приватности рандомизируют отпечаток (до weightFingerprint)
func fingerprintFactor() int {
	return 0
}

// intervalVariance дисперсия интервалов между соседними событиями, в секундах²
func intervalVariance(events []time.Time) float64 {
	if len(events) < 2 {
		return 0
	}

	intervals := make([]float64, 0, len(events)-1)
	var sum float64
	for i := 1; i < len(events); i++ {
		d := events[i].Sub(events[i-1]).Seconds()
		intervals = append(intervals, d)
		sum += d
	}
	mean := sum / float64(len(intervals))

	var sq float64
	for _, d := range intervals {
		sq += (d - mean) * (d - mean)
	}
	return sq / float64(len(intervals))
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > maxScore {
		return maxScore
	}
	return score
}
