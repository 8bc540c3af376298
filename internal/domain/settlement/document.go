package settlement

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AllocationState is the per-document allocation state
type AllocationState string

const (
	AllocationStateUnallocated AllocationState = "UNALLOCATED"
	AllocationStatePartial     AllocationState = "PARTIALLY_ALLOCATED"
	AllocationStateFull        AllocationState = "FULLY_ALLOCATED"
)

// OutstandingDocument is one row of a settlement batch.
// OriginalAmount is the open balance at load time and does not change afterwards.
type OutstandingDocument struct {
	OpenItemID      uuid.UUID
	Kind            DocumentKind
	DocumentNo      string
	DocumentDate    time.Time
	DiscountDueDate *time.Time
	OriginalAmount  decimal.Decimal
	WithDiscount    bool
	DiscountAmount  decimal.Decimal
	AppliedAmount   decimal.Decimal

	loadOrder int
}

// EffectiveDiscount returns the discount currently taken on the row
func (d OutstandingDocument) EffectiveDiscount() decimal.Decimal {
	if d.WithDiscount {
		return d.DiscountAmount
	}
	return decimal.Zero
}

// Cap returns the most that may be applied to the row
func (d OutstandingDocument) Cap() decimal.Decimal {
	return valueobject.NonNegative(d.OriginalAmount.Sub(d.EffectiveDiscount()))
}

// Outstanding returns what stays open after this settlement
func (d OutstandingDocument) Outstanding() decimal.Decimal {
	return d.OriginalAmount.Sub(d.EffectiveDiscount()).Sub(d.AppliedAmount)
}

// Selected is true exactly when something is applied to the row
func (d OutstandingDocument) Selected() bool {
	return d.AppliedAmount.IsPositive()
}

// State returns the allocation state of the row
func (d OutstandingDocument) State() AllocationState {
	switch {
	case !d.AppliedAmount.IsPositive():
		return AllocationStateUnallocated
	case d.AppliedAmount.LessThan(d.Cap()):
		return AllocationStatePartial
	default:
		return AllocationStateFull
	}
}

// LoadOrder is the row's position when the document set was loaded
func (d OutstandingDocument) LoadOrder() int {
	return d.loadOrder
}

func (d *OutstandingDocument) clone() *OutstandingDocument {
	c := *d
	if d.DiscountDueDate != nil {
		due := *d.DiscountDueDate
		c.DiscountDueDate = &due
	}
	return &c
}

func documentFromOpenItem(item OpenItem, loadOrder int) *OutstandingDocument {
	doc := &OutstandingDocument{
		OpenItemID:     item.ID,
		Kind:           item.Kind,
		DocumentNo:     item.DocumentNo,
		DocumentDate:   item.DocumentDate,
		OriginalAmount: valueobject.Round2(item.Balance),
		DiscountAmount: valueobject.Clamp(valueobject.Round2(item.DiscountAmount), decimal.Zero, valueobject.Round2(item.Balance)),
		AppliedAmount:  decimal.Zero,
		loadOrder:      loadOrder,
	}
	if item.DiscountDueDate != nil {
		due := *item.DiscountDueDate
		doc.DiscountDueDate = &due
	}
	return doc
}
