package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OpenItemCatalog supplies the open documents of a counterparty
type OpenItemCatalog interface {
	// FindOpenItems returns items with a positive balance, oldest document first
	FindOpenItems(ctx context.Context, tenantID uuid.UUID, ledger Ledger, counterpartyID uuid.UUID) ([]OpenItem, error)
}

// OpenItemRepository maintains the open item catalog
type OpenItemRepository interface {
	OpenItemCatalog
	// Upsert inserts items or updates the item with the same ledger, counterparty and document number
	Upsert(ctx context.Context, items []*OpenItem) error
}

// SettlementRepository persists saved settlements
type SettlementRepository interface {
	// Save stores a new record and clears each line from its open item's balance atomically
	Save(ctx context.Context, record *SettlementRecord) error
	// UpdateMethodFlags stores changed post-dated flags of an existing record
	UpdateMethodFlags(ctx context.Context, record *SettlementRecord) error
	FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*SettlementRecord, error)
}

// DraftStore parks batches between requests
type DraftStore interface {
	Save(ctx context.Context, draft *Draft) error
	// Get returns shared.ErrNotFound for missing or expired drafts
	Get(ctx context.Context, tenantID, id uuid.UUID) (*Draft, error)
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	// PurgeExpired drops drafts that expired before now and reports how many
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// SaveReceiptStore remembers which settlement a client's idempotency key
// produced so that a retried save returns the same record
type SaveReceiptStore interface {
	// Remember records settlementID under key; an existing receipt is kept
	Remember(ctx context.Context, tenantID uuid.UUID, key string, settlementID uuid.UUID, ttl time.Duration) error
	// Recall reports the settlement saved under key, if any
	Recall(ctx context.Context, tenantID uuid.UUID, key string) (uuid.UUID, bool, error)
}

// SessionLease lets one holder at a time change a session across instances
// sharing a draft store
type SessionLease interface {
	// Acquire waits until the session is free or ctx ends. The lease lapses on
	// its own after ttl if it is never released.
	Acquire(ctx context.Context, tenantID, sessionID uuid.UUID, ttl time.Duration) (release func(context.Context) error, err error)
}
