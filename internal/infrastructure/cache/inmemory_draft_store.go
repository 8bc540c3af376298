package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
)

type draftKey struct {
	tenantID uuid.UUID
	id       uuid.UUID
}

// InMemoryDraftStore implements settlement.DraftStore with a map.
// It is suitable for single-instance deployments and testing; expired drafts
// linger until PurgeExpired runs.
type InMemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[draftKey]settlement.Draft
	now    func() time.Time
}

// InMemoryDraftStoreOption configures an InMemoryDraftStore
type InMemoryDraftStoreOption func(*InMemoryDraftStore)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) InMemoryDraftStoreOption {
	return func(s *InMemoryDraftStore) {
		s.now = now
	}
}

// NewInMemoryDraftStore creates an empty in-memory draft store
func NewInMemoryDraftStore(opts ...InMemoryDraftStoreOption) *InMemoryDraftStore {
	s := &InMemoryDraftStore{
		drafts: make(map[draftKey]settlement.Draft),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores a copy of the draft, replacing any earlier version
func (s *InMemoryDraftStore) Save(ctx context.Context, draft *settlement.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[draftKey{draft.TenantID, draft.ID}] = *draft
	return nil
}

// Get returns the tenant's draft unless it is missing or expired
func (s *InMemoryDraftStore) Get(ctx context.Context, tenantID, id uuid.UUID) (*settlement.Draft, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.drafts[draftKey{tenantID, id}]
	if !ok || d.Expired(s.now()) {
		return nil, fmt.Errorf("%w: settlement session %s", shared.ErrNotFound, id)
	}
	return &d, nil
}

// Delete removes a draft; deleting a missing draft is not an error
func (s *InMemoryDraftStore) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, draftKey{tenantID, id})
	return nil
}

// PurgeExpired removes drafts that expired at or before now
func (s *InMemoryDraftStore) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for key, d := range s.drafts {
		if d.Expired(now) {
			delete(s.drafts, key)
			purged++
		}
	}
	return purged, nil
}

// Size returns the number of stored drafts, expired ones included
func (s *InMemoryDraftStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

var _ settlement.DraftStore = (*InMemoryDraftStore)(nil)
