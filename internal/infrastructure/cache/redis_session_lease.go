package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultLeaseKeyPrefix = "settlement:lease:"
	defaultLeaseRetry     = 25 * time.Millisecond
)

// releaseLease deletes the key only while it still holds the caller's token,
// so a holder whose lease lapsed cannot free someone else's
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSessionLease implements settlement.SessionLease with SET NX PX so
// instances sharing a RedisDraftStore take turns on a session
type RedisSessionLease struct {
	client    *redis.Client
	keyPrefix string
	retry     time.Duration
}

// NewRedisSessionLease creates a lease on an existing Redis client
func NewRedisSessionLease(client *redis.Client, keyPrefix string) *RedisSessionLease {
	if keyPrefix == "" {
		keyPrefix = defaultLeaseKeyPrefix
	}
	return &RedisSessionLease{
		client:    client,
		keyPrefix: keyPrefix,
		retry:     defaultLeaseRetry,
	}
}

func (l *RedisSessionLease) key(tenantID, sessionID uuid.UUID) string {
	return l.keyPrefix + tenantID.String() + ":" + sessionID.String()
}

// Acquire polls SETNX until the key is free. A context that ends while
// another holder keeps the lease yields shared.ErrConcurrencyConflict.
func (l *RedisSessionLease) Acquire(ctx context.Context, tenantID, sessionID uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	key := l.key(tenantID, sessionID)
	token := uuid.NewString()

	ticker := time.NewTicker(l.retry)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, l.busy(sessionID)
			}
			return nil, fmt.Errorf("failed to take session lease: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				if err := releaseLease.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
					return fmt.Errorf("failed to release session lease: %w", err)
				}
				return nil
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, l.busy(sessionID)
		case <-ticker.C:
		}
	}
}

func (l *RedisSessionLease) busy(sessionID uuid.UUID) error {
	return fmt.Errorf("%w: settlement session %s is being changed by another request",
		shared.ErrConcurrencyConflict, sessionID)
}

var _ settlement.SessionLease = (*RedisSessionLease)(nil)
