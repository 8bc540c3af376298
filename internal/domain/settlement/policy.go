package settlement

import (
	"github.com/shopspring/decimal"
)

// Mode is the editing mode of a settlement screen
type Mode string

const (
	ModeNew  Mode = "NEW"  // entering a new settlement
	ModeEdit Mode = "EDIT" // reopened saved settlement, amounts frozen
	ModeView Mode = "VIEW" // read only
)

// IsValid checks if the mode is valid
func (m Mode) IsValid() bool {
	return m == ModeNew || m == ModeEdit || m == ModeView
}

// String returns the string representation of Mode
func (m Mode) String() string {
	return string(m)
}

// RowLocked reports whether a document row accepts selection, amount and discount edits.
// It is a pure function of its inputs and is recomputed on every read.
func RowLocked(mode Mode, remaining decimal.Decimal, rowSelected bool) bool {
	switch mode {
	case ModeNew:
		return !(remaining.IsPositive() || rowSelected)
	default:
		return true
	}
}

// MethodsEditable reports whether settlement method rows may be changed
func MethodsEditable(mode Mode) bool {
	return mode == ModeNew
}

// PostDatedEditable reports whether the post-dated cheque flag of a method row may be changed
func PostDatedEditable(mode Mode) bool {
	return mode == ModeNew || mode == ModeEdit
}

// SavePolicy decides whether a settlement with unapplied money may be saved
type SavePolicy string

const (
	SavePolicyRequireBalanced         SavePolicy = "REQUIRE_BALANCED"
	SavePolicyAllowRemainderOnRequest SavePolicy = "ALLOW_REMAINDER_ON_REQUEST"
)

// IsValid checks if the save policy is valid
func (p SavePolicy) IsValid() bool {
	return p == SavePolicyRequireBalanced || p == SavePolicyAllowRemainderOnRequest
}

// Permits returns nil when a batch with the given remaining amount may be saved
func (p SavePolicy) Permits(remaining decimal.Decimal, acceptRemainder bool) error {
	if remaining.IsZero() {
		return nil
	}
	if p == SavePolicyAllowRemainderOnRequest && acceptRemainder && remaining.IsPositive() {
		return nil
	}
	return unbalanced(remaining)
}
