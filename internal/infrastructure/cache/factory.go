package cache

import (
	"context"
	"fmt"

	"github.com/livestatement/backend/internal/domain/shared"
	"github.com/livestatement/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// NewSucceededJobCache builds the cache selected by cfg.CacheBackend.
// The none backend returns a nil store, which disables the cache.
func NewSucceededJobCache(ctx context.Context, cfg config.IdempotencyConfig, redisCfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendNone, "":
		return nil, nil
	case config.CacheBackendMemory:
		logger.Info("using in-memory succeeded-job cache")
		return NewInMemoryIdempotencyStore(), nil
	case config.CacheBackendRedis:
		client, err := DialRedis(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		logger.Info("using Redis succeeded-job cache", zap.String("addr", redisCfg.Addr()))
		return NewRedisIdempotencyStore(client, ""), nil
	default:
		return nil, fmt.Errorf("unknown succeeded-job cache backend %q", cfg.CacheBackend)
	}
}
