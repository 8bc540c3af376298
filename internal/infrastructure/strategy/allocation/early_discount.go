package allocation

import (
	"context"
	"sort"

	"github.com/erp/settlement/internal/domain/shared/strategy"
)

// EarlyDiscountAllocationStrategy settles documents whose discount is taken
// before the others, earliest discount deadline first, so discounts are not lost
// to a short settlement amount.
type EarlyDiscountAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewEarlyDiscountAllocationStrategy creates a new early discount allocation strategy
func NewEarlyDiscountAllocationStrategy() *EarlyDiscountAllocationStrategy {
	return &EarlyDiscountAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"early_discount",
			"Allocate to discounted documents first, earliest discount deadline first",
		),
	}
}

// Allocate fills discounted slots first, then the rest in display order
func (s *EarlyDiscountAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	slots []strategy.AllocationSlot,
) (strategy.AllocationResult, error) {
	sorted := make([]strategy.AllocationSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.DiscountActive != b.DiscountActive {
			return a.DiscountActive
		}
		if a.DiscountActive {
			switch {
			case a.DiscountDueDate != nil && b.DiscountDueDate == nil:
				return true
			case a.DiscountDueDate == nil && b.DiscountDueDate != nil:
				return false
			case a.DiscountDueDate != nil && !a.DiscountDueDate.Equal(*b.DiscountDueDate):
				return a.DiscountDueDate.Before(*b.DiscountDueDate)
			}
		}
		return a.Position < b.Position
	})

	return strategy.FillInOrder(allocCtx.Amount, sorted), nil
}

// SupportsPartialAllocation returns true; the last slot reached may be partly filled
func (s *EarlyDiscountAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}
