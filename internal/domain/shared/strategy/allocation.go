package strategy

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// AllocationSlot is one open document offered to an allocation strategy.
// Position is the document's index in the current display order.
type AllocationSlot struct {
	DocumentNo      string
	DocumentDate    time.Time
	DiscountDueDate *time.Time
	DiscountActive  bool
	Capacity        decimal.Decimal
	Position        int
}

// Allocation is the amount a strategy assigns to one slot
type Allocation struct {
	DocumentNo      string
	AllocatedAmount decimal.Decimal
	CapacityBefore  decimal.Decimal
	CapacityAfter   decimal.Decimal
}

// AllocationContext provides context for settlement allocation
type AllocationContext struct {
	TenantID       string
	CounterpartyID string
	Amount         decimal.Decimal
	SettlementDate time.Time
}

// AllocationResult contains the result of settlement allocation
type AllocationResult struct {
	Allocations    []Allocation
	TotalAllocated decimal.Decimal
	Remaining      decimal.Decimal
}

// SettlementAllocationStrategy distributes a settlement amount over open documents
type SettlementAllocationStrategy interface {
	Strategy
	// Allocate assigns allocCtx.Amount to slots; slots absent from the result receive nothing
	Allocate(ctx context.Context, allocCtx AllocationContext, slots []AllocationSlot) (AllocationResult, error)
	// SupportsPartialAllocation returns true if a slot may receive less than its capacity
	SupportsPartialAllocation() bool
}

// FillInOrder allocates greedily over slots in the order given.
// Strategies differ only in how they order slots before calling it.
func FillInOrder(amount decimal.Decimal, slots []AllocationSlot) AllocationResult {
	remaining := amount
	allocations := make([]Allocation, 0, len(slots))
	total := decimal.Zero

	for _, slot := range slots {
		if !remaining.IsPositive() {
			break
		}
		if !slot.Capacity.IsPositive() {
			continue
		}

		allocated := decimal.Min(remaining, slot.Capacity)
		allocations = append(allocations, Allocation{
			DocumentNo:      slot.DocumentNo,
			AllocatedAmount: allocated,
			CapacityBefore:  slot.Capacity,
			CapacityAfter:   slot.Capacity.Sub(allocated),
		})
		remaining = remaining.Sub(allocated)
		total = total.Add(allocated)
	}

	return AllocationResult{
		Allocations:    allocations,
		TotalAllocated: total,
		Remaining:      remaining,
	}
}
