package settlement

import (
	"context"

	"github.com/erp/settlement/internal/domain/shared/strategy"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// SequentialFillStrategyName is the registry name of the built-in strategy
const SequentialFillStrategyName = "sequential"

// SequentialFillStrategy fills rows greedily in the current display order
type SequentialFillStrategy struct {
	strategy.BaseStrategy
}

// NewSequentialFillStrategy creates the built-in display order strategy
func NewSequentialFillStrategy() *SequentialFillStrategy {
	return &SequentialFillStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			SequentialFillStrategyName,
			"Fill documents in the order they are displayed",
		),
	}
}

// Allocate fills slots in the order given
func (s *SequentialFillStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	slots []strategy.AllocationSlot,
) (strategy.AllocationResult, error) {
	return strategy.FillInOrder(allocCtx.Amount, slots), nil
}

// SupportsPartialAllocation returns true; the last slot reached may be partly filled
func (s *SequentialFillStrategy) SupportsPartialAllocation() bool {
	return true
}

// AutoAllocate resets the rows in scope and refills them in display order.
// Running it twice in a row gives the same result.
func (b *Batch) AutoAllocate(scope Scope) {
	// The built-in strategy cannot fail.
	_ = b.AutoAllocateWith(context.Background(), scope, nil)
}

// AutoAllocateWith resets the rows in scope and lets s distribute what is left.
// Whatever s proposes is clamped to each row's cap and to the batch total.
// A nil strategy means sequential fill. On error the batch is left unchanged.
func (b *Batch) AutoAllocateWith(ctx context.Context, scope Scope, s strategy.SettlementAllocationStrategy) error {
	if b.mode != ModeNew {
		return nil
	}
	if !scope.IsValid() {
		return ErrInvalidScope
	}
	if s == nil {
		s = NewSequentialFillStrategy()
	}

	inScope := b.scopeDocuments(scope)
	previous := make([]decimal.Decimal, len(inScope))
	for i, d := range inScope {
		previous[i] = d.AppliedAmount
		d.AppliedAmount = decimal.Zero
	}

	slots := make([]strategy.AllocationSlot, 0, len(inScope))
	byNo := make(map[string]*OutstandingDocument, len(inScope))
	for _, d := range inScope {
		byNo[d.DocumentNo] = d
		slots = append(slots, strategy.AllocationSlot{
			DocumentNo:      d.DocumentNo,
			DocumentDate:    d.DocumentDate,
			DiscountDueDate: d.DiscountDueDate,
			DiscountActive:  d.WithDiscount,
			Capacity:        d.Cap(),
			Position:        b.position(d),
		})
	}

	result, err := s.Allocate(ctx, strategy.AllocationContext{
		TenantID:       b.tenantID.String(),
		CounterpartyID: b.counterpartyID.String(),
		Amount:         valueobject.NonNegative(b.Remaining()),
		SettlementDate: b.settlementDate,
	}, slots)
	if err != nil {
		for i, d := range inScope {
			d.AppliedAmount = previous[i]
		}
		return err
	}

	for _, a := range result.Allocations {
		d, ok := byNo[a.DocumentNo]
		if !ok {
			continue
		}
		available := valueobject.NonNegative(b.Remaining())
		if !available.IsPositive() {
			break
		}
		amount := valueobject.Clamp(valueobject.Round2(a.AllocatedAmount), decimal.Zero, d.Cap().Sub(d.AppliedAmount))
		d.AppliedAmount = d.AppliedAmount.Add(decimal.Min(amount, available))
	}
	return nil
}

// scopeDocuments returns the rows auto-allocation may touch, in display order.
// SELECTED with nothing selected widens to every row.
func (b *Batch) scopeDocuments(scope Scope) []*OutstandingDocument {
	if scope == ScopeSelected {
		selected := make([]*OutstandingDocument, 0, len(b.documents))
		for _, d := range b.documents {
			if d.Selected() {
				selected = append(selected, d)
			}
		}
		if len(selected) > 0 {
			return selected
		}
	}
	all := make([]*OutstandingDocument, len(b.documents))
	copy(all, b.documents)
	return all
}

func (b *Batch) position(d *OutstandingDocument) int {
	for i, doc := range b.documents {
		if doc == d {
			return i
		}
	}
	return -1
}
