package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/google/uuid"
)

type receiptKey struct {
	tenantID uuid.UUID
	key      string
}

type receipt struct {
	settlementID uuid.UUID
	expiresAt    time.Time
}

// InMemorySaveReceiptStore implements settlement.SaveReceiptStore using an in-memory map.
// This is suitable for single-instance deployments and testing.
type InMemorySaveReceiptStore struct {
	mu        sync.RWMutex
	receipts  map[receiptKey]receipt
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemorySaveReceiptStore creates a store and starts a goroutine that
// drops expired receipts
func NewInMemorySaveReceiptStore() *InMemorySaveReceiptStore {
	s := &InMemorySaveReceiptStore{
		receipts: make(map[receiptKey]receipt),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.cleanupLoop()
	return s
}

// Remember records the settlement saved under key unless a live receipt exists
func (s *InMemorySaveReceiptStore) Remember(ctx context.Context, tenantID uuid.UUID, key string, settlementID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := receiptKey{tenantID, key}
	now := s.now()
	if r, ok := s.receipts[k]; ok && now.Before(r.expiresAt) {
		return nil
	}
	s.receipts[k] = receipt{settlementID: settlementID, expiresAt: now.Add(ttl)}
	return nil
}

// Recall returns the settlement saved under key while its receipt is live
func (s *InMemorySaveReceiptStore) Recall(ctx context.Context, tenantID uuid.UUID, key string) (uuid.UUID, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.receipts[receiptKey{tenantID, key}]
	if !ok || !s.now().Before(r.expiresAt) {
		return uuid.Nil, false, nil
	}
	return r.settlementID, true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *InMemorySaveReceiptStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *InMemorySaveReceiptStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *InMemorySaveReceiptStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, r := range s.receipts {
		if !now.Before(r.expiresAt) {
			delete(s.receipts, k)
		}
	}
}

// Size returns the number of receipts held, expired ones included
func (s *InMemorySaveReceiptStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}

var _ settlement.SaveReceiptStore = (*InMemorySaveReceiptStore)(nil)
