package cache

import (
	"fmt"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/config"
	"go.uber.org/zap"
)

// DraftStoreFactory creates the draft store named by configuration
type DraftStoreFactory struct {
	settlementConfig      config.SettlementConfig
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// DraftStoreFactoryOption is a functional option for configuring the factory
type DraftStoreFactoryOption func(*DraftStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) DraftStoreFactoryOption {
	return func(f *DraftStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis falls back to the
// in-memory store. Default is false: sessions must not silently become
// per-instance in a multi-instance deployment.
func WithInMemoryFallback(allow bool) DraftStoreFactoryOption {
	return func(f *DraftStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewDraftStoreFactory creates a new factory
func NewDraftStoreFactory(settlementCfg config.SettlementConfig, redisCfg config.RedisConfig, opts ...DraftStoreFactoryOption) *DraftStoreFactory {
	f := &DraftStoreFactory{
		settlementConfig: settlementCfg,
		redisConfig:      redisCfg,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the configured store. The second result is true when
// the store is in-memory and needs the expiry sweeper.
func (f *DraftStoreFactory) CreateStore() (settlement.DraftStore, bool, error) {
	if f.settlementConfig.DraftStore != "redis" {
		f.logger.Info("using in-memory settlement draft store")
		return NewInMemoryDraftStore(), true, nil
	}

	store, err := NewRedisDraftStore(RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis settlement draft store", zap.String("addr", f.redisConfig.Addr()))
		return store, false, nil
	}

	if !f.allowInMemoryFallback {
		return nil, false, fmt.Errorf("Redis draft store unavailable: %w", err)
	}
	f.logger.Warn("Redis unavailable, falling back to in-memory draft store. "+
		"Sessions will not be shared between instances.",
		zap.Error(err),
	)
	return NewInMemoryDraftStore(), true, nil
}
