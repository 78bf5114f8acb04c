package cache

import (
	"context"
	"fmt"

	"github.com/mvstudio/backend/internal/domain/shared"
	"github.com/mvstudio/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// StoreFactory picks the idempotency store for the configured environment
type StoreFactory struct {
	redis         config.RedisConfig
	enabled       bool
	keyPrefix     string
	logger        *zap.Logger
	allowFallback bool
}

// StoreFactoryOption configures a StoreFactory
type StoreFactoryOption func(*StoreFactory)

// WithLogger sets the factory's logger
func WithLogger(logger *zap.Logger) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store. Enabled by default.
func WithInMemoryFallback(allow bool) StoreFactoryOption {
	return func(f *StoreFactory) {
		f.allowFallback = allow
	}
}

// NewStoreFactory creates a StoreFactory. The ledger settings decide whether
// Redis is tried at all and which key prefix it uses.
func NewStoreFactory(redisCfg config.RedisConfig, ledger config.LedgerConfig, opts ...StoreFactoryOption) *StoreFactory {
	f := &StoreFactory{
		redis:         redisCfg,
		enabled:       ledger.RedisFastPathEnabled,
		keyPrefix:     ledger.IdempotencyKeyPrefix,
		logger:        zap.NewNop(),
		allowFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns a Redis store when Redis is enabled and reachable,
// otherwise the in-memory store if fallback is allowed.
func (f *StoreFactory) CreateStore(ctx context.Context) (shared.IdempotencyStore, error) {
	if !f.enabled {
		f.logger.Info("Redis disabled, using in-memory idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	}

	client, err := DialRedis(ctx, f.redis.Addr(), f.redis.Password, f.redis.DB)
	if err == nil {
		f.logger.Info("Using Redis idempotency store", zap.String("addr", f.redis.Addr()))
		return NewRedisIdempotencyStore(client, f.keyPrefix), nil
	}
	if !f.allowFallback {
		return nil, fmt.Errorf("redis required for idempotency: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store",
		zap.String("addr", f.redis.Addr()),
		zap.Error(err))
	return NewInMemoryIdempotencyStore(), nil
}
