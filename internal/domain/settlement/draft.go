package settlement

import (
	"time"

	"github.com/google/uuid"
)

// Draft is a parked batch awaiting the next edit, save or discard
type Draft struct {
	ID        uuid.UUID     `json:"id"`
	TenantID  uuid.UUID     `json:"tenant_id"`
	Batch     BatchSnapshot `json:"batch"`
	UpdatedAt time.Time     `json:"updated_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// NewDraft snapshots b; the draft lives for ttl from now
func NewDraft(b *Batch, ttl time.Duration, now time.Time) *Draft {
	return &Draft{
		ID:        b.ID(),
		TenantID:  b.TenantID(),
		Batch:     b.Snapshot(),
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the draft is past its expiry
func (d *Draft) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Restore rebuilds the batch held by the draft
func (d *Draft) Restore() (*Batch, error) {
	return RestoreBatch(d.Batch)
}
