package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultDraftKeyPrefix = "settlement:draft:"

// RedisDraftStore implements settlement.DraftStore on Redis so that every
// instance behind a load balancer sees the same sessions. Pair it with
// RedisSessionLease, since an instance's own session locks do not reach the
// others. Redis expires keys on its own, so PurgeExpired has nothing to do.
type RedisDraftStore struct {
	client    *redis.Client
	keyPrefix string
	now       func() time.Time
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisDraftStore connects to Redis and verifies the connection
func NewRedisDraftStore(cfg RedisConfig) (*RedisDraftStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisDraftStoreWithClient(client, ""), nil
}

// NewRedisDraftStoreWithClient creates a store with an existing Redis client
func NewRedisDraftStoreWithClient(client *redis.Client, keyPrefix string) *RedisDraftStore {
	if keyPrefix == "" {
		keyPrefix = defaultDraftKeyPrefix
	}
	return &RedisDraftStore{
		client:    client,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

func (s *RedisDraftStore) key(tenantID, id uuid.UUID) string {
	return s.keyPrefix + tenantID.String() + ":" + id.String()
}

// Save stores the draft as JSON with a TTL matching its expiry
func (s *RedisDraftStore) Save(ctx context.Context, draft *settlement.Draft) error {
	ttl := draft.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return s.Delete(ctx, draft.TenantID, draft.ID)
	}

	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to encode draft: %w", err)
	}
	if err := s.client.Set(ctx, s.key(draft.TenantID, draft.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store draft: %w", err)
	}
	return nil
}

// Get loads a draft; missing keys map to shared.ErrNotFound
func (s *RedisDraftStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.Draft, error) {
	payload, err := s.client.Get(ctx, s.key(tenantID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: settlement session %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load draft: %w", err)
	}

	var d settlement.Draft
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("failed to decode draft: %w", err)
	}
	if d.Expired(s.now()) {
		return nil, fmt.Errorf("%w: settlement session %s", shared.ErrNotFound, id)
	}
	return &d, nil
}

// Delete removes a draft
func (s *RedisDraftStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	if err := s.client.Del(ctx, s.key(tenantID, id)).Err(); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op; Redis evicts expired keys itself
func (s *RedisDraftStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// Ping checks that Redis is reachable
func (s *RedisDraftStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying Redis client so other stores can share it
func (s *RedisDraftStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis client
func (s *RedisDraftStore) Close() error {
	return s.client.Close()
}

var _ settlement.DraftStore = (*RedisDraftStore)(nil)
