package allocation

import (
	"context"
	"sort"

	"github.com/erp/settlement/internal/domain/shared/strategy"
)

// FIFOAllocationStrategy settles the oldest documents first
type FIFOAllocationStrategy struct {
	strategy.BaseStrategy
}

// NewFIFOAllocationStrategy creates a new FIFO allocation strategy
func NewFIFOAllocationStrategy() *FIFOAllocationStrategy {
	return &FIFOAllocationStrategy{
		BaseStrategy: strategy.NewBaseStrategy(
			"fifo",
			"Allocate to the oldest documents first",
		),
	}
}

// Allocate fills slots by document date, oldest first; equal dates keep display order
func (s *FIFOAllocationStrategy) Allocate(
	ctx context.Context,
	allocCtx strategy.AllocationContext,
	slots []strategy.AllocationSlot,
) (strategy.AllocationResult, error) {
	sorted := make([]strategy.AllocationSlot, len(slots))
	copy(sorted, slots)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].DocumentDate.Equal(sorted[j].DocumentDate) {
			return sorted[i].DocumentDate.Before(sorted[j].DocumentDate)
		}
		return sorted[i].Position < sorted[j].Position
	})

	return strategy.FillInOrder(allocCtx.Amount, sorted), nil
}

// SupportsPartialAllocation returns true as FIFO supports partial allocation
func (s *FIFOAllocationStrategy) SupportsPartialAllocation() bool {
	return true
}
