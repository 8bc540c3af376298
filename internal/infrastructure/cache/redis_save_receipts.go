package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultReceiptKeyPrefix = "settlement:receipt:"

// RedisSaveReceiptStore implements settlement.SaveReceiptStore using Redis so
// that a retry landing on another instance still finds the receipt
type RedisSaveReceiptStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisSaveReceiptStore creates a store on an existing Redis client
func NewRedisSaveReceiptStore(client *redis.Client, keyPrefix string) *RedisSaveReceiptStore {
	if keyPrefix == "" {
		keyPrefix = defaultReceiptKeyPrefix
	}
	return &RedisSaveReceiptStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *RedisSaveReceiptStore) key(tenantID uuid.UUID, key string) string {
	return s.keyPrefix + tenantID.String() + ":" + key
}

// Remember uses SETNX so the first saved settlement wins
func (s *RedisSaveReceiptStore) Remember(ctx context.Context, tenantID uuid.UUID, key string, settlementID uuid.UUID, ttl time.Duration) error {
	if err := s.client.SetNX(ctx, s.key(tenantID, key), settlementID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store save receipt: %w", err)
	}
	return nil
}

// Recall returns the settlement saved under key
func (s *RedisSaveReceiptStore) Recall(ctx context.Context, tenantID uuid.UUID, key string) (uuid.UUID, bool, error) {
	raw, err := s.client.Get(ctx, s.key(tenantID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to read save receipt: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt save receipt %q: %w", raw, err)
	}
	return id, true, nil
}

var _ settlement.SaveReceiptStore = (*RedisSaveReceiptStore)(nil)
