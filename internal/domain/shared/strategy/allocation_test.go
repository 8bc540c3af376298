package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFillInOrder(t *testing.T) {
	slots := []AllocationSlot{
		{DocumentNo: "INV-1", Capacity: decimal.NewFromInt(500), Position: 0},
		{DocumentNo: "INV-2", Capacity: decimal.Zero, Position: 1},
		{DocumentNo: "INV-3", Capacity: decimal.NewFromInt(800), Position: 2},
		{DocumentNo: "INV-4", Capacity: decimal.NewFromInt(100), Position: 3},
	}

	t.Run("partial fill stops when amount is used up", func(t *testing.T) {
		result := FillInOrder(decimal.NewFromInt(700), slots)

		require.Len(t, result.Allocations, 2)
		assert.Equal(t, "INV-1", result.Allocations[0].DocumentNo)
		assert.True(t, result.Allocations[0].AllocatedAmount.Equal(decimal.NewFromInt(500)))
		assert.True(t, result.Allocations[0].CapacityAfter.IsZero())
		assert.Equal(t, "INV-3", result.Allocations[1].DocumentNo)
		assert.True(t, result.Allocations[1].AllocatedAmount.Equal(decimal.NewFromInt(200)))
		assert.True(t, result.Allocations[1].CapacityAfter.Equal(decimal.NewFromInt(600)))
		assert.True(t, result.TotalAllocated.Equal(decimal.NewFromInt(700)))
		assert.True(t, result.Remaining.IsZero())
	})

	t.Run("amount larger than all capacity leaves remainder", func(t *testing.T) {
		result := FillInOrder(decimal.NewFromInt(2000), slots)

		assert.Len(t, result.Allocations, 3)
		assert.True(t, result.TotalAllocated.Equal(decimal.NewFromInt(1400)))
		assert.True(t, result.Remaining.Equal(decimal.NewFromInt(600)))
	})

	t.Run("zero amount allocates nothing", func(t *testing.T) {
		result := FillInOrder(decimal.Zero, slots)

		assert.Empty(t, result.Allocations)
		assert.True(t, result.TotalAllocated.IsZero())
	})
}

func TestBaseStrategy(t *testing.T) {
	s := NewBaseStrategy(" Sequential ", "fill in order")

	assert.Equal(t, "sequential", s.Name())
	assert.Equal(t, "fill in order", s.Description())
}
