package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BatchSnapshot is a self-contained copy of a batch, used to park it between requests
type BatchSnapshot struct {
	ID               uuid.UUID          `json:"id"`
	TenantID         uuid.UUID          `json:"tenant_id"`
	Type             SettlementType     `json:"type"`
	CounterpartyID   uuid.UUID          `json:"counterparty_id"`
	Mode             Mode               `json:"mode"`
	SettlementDate   time.Time          `json:"settlement_date"`
	RecordID         *uuid.UUID         `json:"record_id,omitempty"`
	ReabsorbDiscount bool               `json:"reabsorb_discount"`
	SortKey          SortKey            `json:"sort_key,omitempty"`
	SortDirection    SortDirection      `json:"sort_direction,omitempty"`
	Methods          []MethodLine       `json:"methods"`
	Documents        []DocumentSnapshot `json:"documents"`
}

// DocumentSnapshot is the stored form of one document row
type DocumentSnapshot struct {
	OpenItemID      uuid.UUID       `json:"open_item_id"`
	Kind            DocumentKind    `json:"kind"`
	DocumentNo      string          `json:"document_no"`
	DocumentDate    time.Time       `json:"document_date"`
	DiscountDueDate *time.Time      `json:"discount_due_date,omitempty"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	WithDiscount    bool            `json:"with_discount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	LoadOrder       int             `json:"load_order"`
}

// Snapshot deep-copies the batch
func (b *Batch) Snapshot() BatchSnapshot {
	s := BatchSnapshot{
		ID:               b.id,
		TenantID:         b.tenantID,
		Type:             b.settlementType,
		CounterpartyID:   b.counterpartyID,
		Mode:             b.mode,
		SettlementDate:   b.settlementDate,
		ReabsorbDiscount: b.reabsorbDiscount,
		SortKey:          b.sortKey,
		SortDirection:    b.sortDirection,
		Methods:          cloneMethods(b.methods),
		Documents:        make([]DocumentSnapshot, len(b.documents)),
	}
	if b.recordID != nil {
		id := *b.recordID
		s.RecordID = &id
	}
	for i, d := range b.documents {
		c := d.clone()
		s.Documents[i] = DocumentSnapshot{
			OpenItemID:      c.OpenItemID,
			Kind:            c.Kind,
			DocumentNo:      c.DocumentNo,
			DocumentDate:    c.DocumentDate,
			DiscountDueDate: c.DiscountDueDate,
			OriginalAmount:  c.OriginalAmount,
			WithDiscount:    c.WithDiscount,
			DiscountAmount:  c.DiscountAmount,
			AppliedAmount:   c.AppliedAmount,
			LoadOrder:       c.loadOrder,
		}
	}
	return s
}

// RestoreBatch rebuilds a batch from a snapshot. The result shares no state with s.
func RestoreBatch(s BatchSnapshot) (*Batch, error) {
	if !s.Type.IsValid() {
		return nil, ErrInvalidSnapshot
	}
	if !s.Mode.IsValid() {
		return nil, ErrInvalidSnapshot
	}
	b := &Batch{
		id:               s.ID,
		tenantID:         s.TenantID,
		settlementType:   s.Type,
		counterpartyID:   s.CounterpartyID,
		mode:             s.Mode,
		settlementDate:   s.SettlementDate,
		reabsorbDiscount: s.ReabsorbDiscount,
		sortKey:          s.SortKey,
		sortDirection:    s.SortDirection,
		methods:          cloneMethods(s.Methods),
		documents:        make([]*OutstandingDocument, len(s.Documents)),
	}
	if s.RecordID != nil {
		id := *s.RecordID
		b.recordID = &id
	}
	for i, d := range s.Documents {
		doc := &OutstandingDocument{
			OpenItemID:      d.OpenItemID,
			Kind:            d.Kind,
			DocumentNo:      d.DocumentNo,
			DocumentDate:    d.DocumentDate,
			DiscountDueDate: d.DiscountDueDate,
			OriginalAmount:  d.OriginalAmount,
			WithDiscount:    d.WithDiscount,
			DiscountAmount:  d.DiscountAmount,
			AppliedAmount:   d.AppliedAmount,
			loadOrder:       d.LoadOrder,
		}
		b.documents[i] = doc.clone()
	}
	if err := b.CheckInvariants(); err != nil {
		return nil, err
	}
	return b, nil
}
