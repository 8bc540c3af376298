package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/strategy"
)

// StrategyRegistry manages allocation strategy registrations
type StrategyRegistry struct {
	mu                   sync.RWMutex
	allocationStrategies map[string]strategy.SettlementAllocationStrategy
	defaultAllocation    string
}

// NewStrategyRegistry creates a new strategy registry
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{
		allocationStrategies: make(map[string]strategy.SettlementAllocationStrategy),
	}
}

// RegisterAllocationStrategy registers a settlement allocation strategy
func (r *StrategyRegistry) RegisterAllocationStrategy(s strategy.SettlementAllocationStrategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.allocationStrategies[name]; exists {
		return fmt.Errorf("%w: allocation strategy '%s' already registered", shared.ErrAlreadyExists, name)
	}
	r.allocationStrategies[name] = s
	return nil
}

// GetAllocationStrategy returns an allocation strategy by name, or the default if name is empty
func (r *StrategyRegistry) GetAllocationStrategy(name string) (strategy.SettlementAllocationStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name == "" {
		name = r.defaultAllocation
		if name == "" {
			return nil, fmt.Errorf("%w: no default allocation strategy set", shared.ErrNotFound)
		}
	}

	s, exists := r.allocationStrategies[name]
	if !exists {
		return nil, fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, name)
	}
	return s, nil
}

// ListAllocationStrategies returns all registered allocation strategies ordered by name
func (r *StrategyRegistry) ListAllocationStrategies() []strategy.SettlementAllocationStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.allocationStrategies))
	for name := range r.allocationStrategies {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]strategy.SettlementAllocationStrategy, 0, len(names))
	for _, name := range names {
		out = append(out, r.allocationStrategies[name])
	}
	return out
}

// UnregisterAllocationStrategy removes an allocation strategy
func (r *StrategyRegistry) UnregisterAllocationStrategy(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.allocationStrategies[name]; !exists {
		return fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, name)
	}
	delete(r.allocationStrategies, name)

	// Clear default if it was this strategy
	if r.defaultAllocation == name {
		r.defaultAllocation = ""
	}
	return nil
}

// SetDefaultAllocation sets the strategy used when callers name none
func (r *StrategyRegistry) SetDefaultAllocation(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.allocationStrategies[name]; !exists {
		return fmt.Errorf("%w: allocation strategy '%s' not found", shared.ErrNotFound, name)
	}
	r.defaultAllocation = name
	return nil
}

// DefaultAllocation returns the default allocation strategy name
func (r *StrategyRegistry) DefaultAllocation() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAllocation
}
