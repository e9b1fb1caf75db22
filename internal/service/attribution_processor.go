package service

import (
	"context"
	"sync"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Константы worker pool
const (
	defaultWorkerCount   = 3    // Количество воркеров
	defaultChannelBuffer = 1000 // Размер буфера канала
	maxRetries           = 3    // Максимальное количество попыток записи
)

// AttributionProcessor асинхронно пишет события атрибуции, не задерживая клики и редиректы
type AttributionProcessor interface {
	Start()
	Stop()
	Record(ctx context.Context, event *models.AttributionEvent) error
	Stats(ctx context.Context, dealID string) (*models.AttributionStats, error)
	ChannelStats() ChannelStats
}

// ChannelStats статистика канала worker pool
type ChannelStats struct {
	BufferSize  int `json:"buffer_size"`  // Общая ёмкость канала
	BufferUsed  int `json:"buffer_used"`  // Текущее использование
	WorkerCount int `json:"worker_count"` // Количество воркеров
}

// attributionProcessor реализация процессора на Worker Pool
type attributionProcessor struct {
	repo         repository.AttributionRepository
	logger       *zap.Logger
	eventChannel chan *models.AttributionEvent
	workerCount  int
	retryDelay   time.Duration
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewAttributionProcessor создаёт процессор. workers и buffer <= 0 заменяются значениями по умолчанию.
func NewAttributionProcessor(repo repository.AttributionRepository, workers, buffer int, logger *zap.Logger) AttributionProcessor {
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &attributionProcessor{
		repo:         repo,
		logger:       logger,
		eventChannel: make(chan *models.AttributionEvent, buffer),
		workerCount:  workers,
		retryDelay:   100 * time.Millisecond,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start запускает worker pool
func (p *attributionProcessor) Start() {
	p.logger.Info("Запуск воркеров атрибуции", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop останавливает воркеров, дописав уже принятые события
func (p *attributionProcessor) Stop() {
	p.logger.Info("Остановка процессора атрибуции...")
	p.cancel()
	p.wg.Wait()
	p.drain()
	p.logger.Info("Процессор атрибуции остановлен")
}

func (p *attributionProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("Воркер атрибуции запущен", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("Воркер атрибуции остановлен", zap.Int("id", id))
			return

		case event := <-p.eventChannel:
			p.process(context.Background(), event)
		}
	}
}

// drain записывает то, что осталось в буфере после остановки воркеров
func (p *attributionProcessor) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		select {
		case event := <-p.eventChannel:
			p.process(ctx, event)
		default:
			return
		}
	}
}

// process пишет одно событие с retry логикой
func (p *attributionProcessor) process(parent context.Context, event *models.AttributionEvent) {
	ctx, cancel := context.WithTimeout(parent, 5*time.Second)
	defer cancel()

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = p.repo.Record(ctx, event); err == nil {
			return
		}
		if i < maxRetries-1 {
			p.logger.Debug("Повторная попытка записи события атрибуции",
				zap.String("event_id", event.ID),
				zap.Int("attempt", i+1),
				zap.Error(err),
			)
			time.Sleep(time.Duration(i+1) * p.retryDelay)
		}
	}

	p.logger.Error("Не удалось записать событие атрибуции после всех попыток",
		zap.String("event_id", event.ID),
		zap.String("kind", string(event.Kind)),
		zap.Error(err),
	)
}

// Record ставит событие в очередь (неблокирующая операция). Полный буфер теряет событие.
func (p *attributionProcessor) Record(ctx context.Context, event *models.AttributionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case p.eventChannel <- event:
		return nil
	default:
		metrics.AttributionEventsDroppedTotal.Inc()
		p.logger.Warn("Буфер событий атрибуции заполнен, событие потеряно",
			zap.String("kind", string(event.Kind)),
			zap.String("token", event.Token),
		)
		return nil
	}
}

func (p *attributionProcessor) Stats(ctx context.Context, dealID string) (*models.AttributionStats, error) {
	return p.repo.Stats(ctx, dealID)
}

func (p *attributionProcessor) ChannelStats() ChannelStats {
	return ChannelStats{
		BufferSize:  cap(p.eventChannel),
		BufferUsed:  len(p.eventChannel),
		WorkerCount: p.workerCount,
	}
}
