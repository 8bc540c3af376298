package strategy

import (
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/strategy/allocation"
)

// NewRegistryWithDefaults creates a registry holding the built-in allocation
// strategies with defaultName as the default. An empty defaultName selects
// sequential fill.
func NewRegistryWithDefaults(defaultName string) (*StrategyRegistry, error) {
	r := NewStrategyRegistry()

	sequential := settlement.NewSequentialFillStrategy()
	if err := r.RegisterAllocationStrategy(sequential); err != nil {
		return nil, err
	}

	fifo := allocation.NewFIFOAllocationStrategy()
	if err := r.RegisterAllocationStrategy(fifo); err != nil {
		return nil, err
	}

	earlyDiscount := allocation.NewEarlyDiscountAllocationStrategy()
	if err := r.RegisterAllocationStrategy(earlyDiscount); err != nil {
		return nil, err
	}

	if defaultName == "" {
		defaultName = sequential.Name()
	}
	if err := r.SetDefaultAllocation(defaultName); err != nil {
		return nil, err
	}

	return r, nil
}
