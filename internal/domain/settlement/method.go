package settlement

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentMethod is how a settlement amount was tendered
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodDocument     PaymentMethod = "DOCUMENT" // credit note, debit note or contra amount
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCheque, PaymentMethodBankTransfer,
		PaymentMethodCard, PaymentMethodDocument, PaymentMethodOther:
		return true
	}
	return false
}

// MethodLine is one row of the settlement method grid
type MethodLine struct {
	Method     PaymentMethod   `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Deduction  decimal.Decimal `json:"deduction"` // bank charges and similar
	PostDated  bool            `json:"post_dated"`
	ChequeDate *time.Time      `json:"cheque_date,omitempty"`
}

// Net returns max(0, amount - deduction)
func (m MethodLine) Net() decimal.Decimal {
	return valueobject.NonNegative(m.Amount.Sub(m.Deduction))
}

func (m MethodLine) clone() MethodLine {
	c := m
	if m.ChequeDate != nil {
		d := *m.ChequeDate
		c.ChequeDate = &d
	}
	return c
}

// SettlementTotal aggregates method rows into the amount available for allocation
type SettlementTotal struct {
	lines []MethodLine
}

// NewSettlementTotal creates a SettlementTotal over a copy of lines
func NewSettlementTotal(lines []MethodLine) SettlementTotal {
	return SettlementTotal{lines: cloneMethods(lines)}
}

// Lines returns a copy of the method rows
func (t SettlementTotal) Lines() []MethodLine {
	return cloneMethods(t.lines)
}

// Gross returns the sum of method amounts before deductions
func (t SettlementTotal) Gross() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.lines {
		sum = sum.Add(l.Amount)
	}
	return valueobject.Round2(sum)
}

// Total returns round2(sum of net amounts)
func (t SettlementTotal) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range t.lines {
		sum = sum.Add(l.Net())
	}
	return valueobject.Round2(sum)
}

func cloneMethods(lines []MethodLine) []MethodLine {
	out := make([]MethodLine, len(lines))
	for i, l := range lines {
		out[i] = l.clone()
	}
	return out
}
