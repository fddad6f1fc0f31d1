package cache

import (
	"go.uber.org/zap"

	"github.com/channelhub/backend/internal/domain/shared"
	"github.com/channelhub/backend/internal/infrastructure/config"
)

// NewIdempotencyStore picks the dedup backend. Redis is preferred so that
// suppression state survives restarts and is shared across instances; when
// Redis is unreachable the store degrades to the in-memory map with a
// warning, since dedup here is best-effort and the queue consumers are
// idempotent anyway.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) shared.IdempotencyStore {
	store, err := NewRedisIdempotencyStore(cfg)
	if err == nil {
		logger.Info("using Redis webhook dedup store",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port))
		return store
	}

	logger.Warn("Redis unavailable, webhook dedup falls back to in-memory store",
		zap.Error(err))
	return NewInMemoryIdempotencyStore()
}
