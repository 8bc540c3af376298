// Package strategy defines the pluggable allocation rules used by auto allocation.
package strategy

import "strings"

// Strategy is the identity every registered strategy exposes
type Strategy interface {
	// Name is the lowercase key clients pass to pick the strategy
	Name() string
	Description() string
}

// BaseStrategy carries a strategy's name and description. Embed it to satisfy Strategy.
type BaseStrategy struct {
	name        string
	description string
}

// NewBaseStrategy normalizes name to lowercase
func NewBaseStrategy(name, description string) BaseStrategy {
	return BaseStrategy{
		name:        strings.ToLower(strings.TrimSpace(name)),
		description: description,
	}
}

func (s BaseStrategy) Name() string        { return s.name }
func (s BaseStrategy) Description() string { return s.description }
