package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/SergeiKhy/brainplus-backend/internal/config"
	"github.com/SergeiKhy/brainplus-backend/internal/metrics"
	"github.com/SergeiKhy/brainplus-backend/internal/models"
	"github.com/SergeiKhy/brainplus-backend/internal/repository"
	"go.uber.org/zap"
)

// Ошибки леджера
var (
	ErrInvalidDestination  = errors.New("невалидный URL назначения")
	ErrTokenSpaceExhausted = errors.New("не удалось сгенерировать уникальный токен")
)

const (
	tokenCharset       = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultTokenLength = 10
	defaultLedgerTTL   = 24 * time.Hour
	maxMintAttempts    = 5
	ledgerStoreTimeout = 2 * time.Second
	defaultLedgerSweep = time.Minute
)

// RedirectLedgerConfig параметры леджера
type RedirectLedgerConfig struct {
	Policy        string // config.LedgerPolicyRepeatable | config.LedgerPolicySingleUse
	TTL           time.Duration
	TokenLength   int
	FallbackURL   string
	SweepInterval time.Duration
	Now           func() time.Time
}

// RedirectLedger выдаёт непрозрачные токены для партнёрских ссылок и разрешает их обратно
type RedirectLedger interface {
	Mint(ctx context.Context, baseURL string, params []models.AffiliateParam) (*models.RedirectMapping, error)
	Resolve(ctx context.Context, token string) models.Resolution
	Len(ctx context.Context) (int64, error)
	Start()
	Stop()
}

// sweeper реализуют хранилища, которые сами не умеют истекать по TTL
type sweeper interface {
	Sweep() int
}

type redirectLedger struct {
	repo   repository.LedgerRepository
	cfg    RedirectLedgerConfig
	logger *zap.Logger

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewRedirectLedger создаёт леджер поверх хранилища
func NewRedirectLedger(repo repository.LedgerRepository, cfg RedirectLedgerConfig, logger *zap.Logger) RedirectLedger {
	if cfg.Policy != config.LedgerPolicySingleUse {
		cfg.Policy = config.LedgerPolicyRepeatable
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLedgerTTL
	}
	if cfg.TokenLength <= 0 {
		cfg.TokenLength = defaultTokenLength
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultLedgerSweep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &redirectLedger{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Mint строит итоговый URL и сохраняет его под новым уникальным токеном
func (l *redirectLedger) Mint(ctx context.Context, baseURL string, params []models.AffiliateParam) (*models.RedirectMapping, error) {
	finalURL, err := BuildAffiliateURL(baseURL, params)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxMintAttempts; attempt++ {
		token, err := generateToken(l.cfg.TokenLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		now := l.cfg.Now()
		mapping := &models.RedirectMapping{
			Token:     token,
			FinalURL:  finalURL,
			CreatedAt: now,
			ExpiresAt: now.Add(l.cfg.TTL),
		}

		err = l.repo.Insert(ctx, mapping)
		if err == nil {
			metrics.RedirectMintsTotal.Inc()
			return mapping, nil
		}
		if !errors.Is(err, repository.ErrTokenExists) {
			return nil, fmt.Errorf("failed to store redirect mapping: %w", err)
		}

		// Коллизия: существующий маппинг не трогаем, пробуем другой токен
		metrics.RedirectTokenCollisionsTotal.Inc()
		l.logger.Debug("Коллизия токена, генерируем заново",
			zap.String("token", token),
			zap.Int("attempt", attempt),
		)
	}

	return nil, ErrTokenSpaceExhausted
}

// Resolve никогда не возвращает ошибку: промах или сбой хранилища дают fallback URL
func (l *redirectLedger) Resolve(ctx context.Context, token string) models.Resolution {
	ctx, cancel := context.WithTimeout(ctx, ledgerStoreTimeout)
	defer cancel()

	var (
		mapping *models.RedirectMapping
		err     error
	)
	if l.cfg.Policy == config.LedgerPolicySingleUse {
		mapping, err = l.repo.Take(ctx, token)
	} else {
		mapping, err = l.repo.Get(ctx, token)
	}

	switch {
	case err == nil:
		metrics.RedirectResolutionsTotal.WithLabelValues(string(models.OutcomeHit)).Inc()
		return models.Resolution{Token: token, URL: mapping.FinalURL, Outcome: models.OutcomeHit}

	case errors.Is(err, repository.ErrTokenNotFound):
		metrics.RedirectResolutionsTotal.WithLabelValues(string(models.OutcomeFallback)).Inc()
		l.logger.Warn("Неизвестный редирект-токен, используем fallback",
			zap.String("token", token),
			zap.String("policy", l.cfg.Policy),
		)
		return models.Resolution{Token: token, URL: l.cfg.FallbackURL, Outcome: models.OutcomeFallback}

	default:
		metrics.RedirectResolutionsTotal.WithLabelValues(string(models.OutcomeError)).Inc()
		l.logger.Error("Ошибка хранилища при разрешении токена, используем fallback",
			zap.String("token", token),
			zap.Error(err),
		)
		return models.Resolution{Token: token, URL: l.cfg.FallbackURL, Outcome: models.OutcomeError}
	}
}

func (l *redirectLedger) Len(ctx context.Context) (int64, error) {
	return l.repo.Len(ctx)
}

// Start запускает очистку истёкших маппингов, если хранилище этого требует
func (l *redirectLedger) Start() {
	sw, ok := l.repo.(sweeper)
	if !ok {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ticker := time.NewTicker(l.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				if removed := sw.Sweep(); removed > 0 {
					l.logger.Debug("Удалены истёкшие редирект-токены", zap.Int("removed", removed))
				}
			}
		}
	}()
}

func (l *redirectLedger) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
}

// BuildAffiliateURL дописывает партнёрские параметры к базовому URL.
// Существующий query сохраняется, новые параметры идут после "&", фрагмент остаётся в конце.
func BuildAffiliateURL(baseURL string, params []models.AffiliateParam) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidDestination
	}

	if len(params) == 0 {
		return u.String(), nil
	}

	values := url.Values{}
	for _, p := range params {
		values.Add(p.Key, p.Value)
	}
	encoded := values.Encode()

	if u.RawQuery == "" {
		u.RawQuery = encoded
	} else {
		u.RawQuery = u.RawQuery + "&" + encoded
	}
	return u.String(), nil
}

// generateToken генерирует случайный base62 токен
func generateToken(length int) (string, error) {
	result := make([]byte, length)
	charsetLen := big.NewInt(int64(len(tokenCharset)))
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		result[i] = tokenCharset[num.Int64()]
	}
	return string(result), nil
}
