package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/advanced-filters-api/pkg/errors"
)

// CacheRepository abstracts persistence for cached payloads.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CacheService is a read-through cache whose failures never fail the caller.
type CacheService struct {
	repo    CacheRepository
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
	enabled bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, ttl time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, ttl: ttl, logger: logger, enabled: enabled}
}

// Enabled indicates whether caching is active.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Remember returns the value cached under key, or loads it and stores it for later
// reads. The boolean reports a cache hit.
func Remember[T any](ctx context.Context, s *CacheService, key string, load func(context.Context) (T, error)) (T, bool, error) {
	if s.Enabled() {
		var cached T
		start := time.Now()
		err := s.repo.Get(ctx, key, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		if err == nil {
			return cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	if s.Enabled() {
		if err := s.repo.Set(ctx, key, value, s.ttl); err != nil {
			s.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		}
	}
	return value, false, nil
}

// Invalidate removes cached values matching pattern. Failures are logged only.
func (s *CacheService) Invalidate(ctx context.Context, pattern string) {
	if !s.Enabled() {
		return
	}
	if err := s.repo.DeleteByPattern(ctx, pattern); err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("pattern", pattern), zap.Error(err))
	}
}
