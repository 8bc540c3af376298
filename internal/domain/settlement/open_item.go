package settlement

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItem is a catalog record of a document with an open balance.
// Settlement batches copy open items on load and never mutate them.
type OpenItem struct {
	shared.TenantAggregateRoot
	Ledger          Ledger
	CounterpartyID  uuid.UUID
	Kind            DocumentKind
	DocumentNo      string
	DocumentDate    time.Time
	Amount          decimal.Decimal // document total
	Balance         decimal.Decimal // still open
	DiscountAmount  decimal.Decimal // early settlement discount on offer
	DiscountDueDate *time.Time
}

// NewOpenItem creates a validated open item with balance equal to amount
func NewOpenItem(
	tenantID uuid.UUID,
	ledger Ledger,
	counterpartyID uuid.UUID,
	kind DocumentKind,
	documentNo string,
	documentDate time.Time,
	amount decimal.Decimal,
) (*OpenItem, error) {
	documentNo = strings.TrimSpace(documentNo)
	if !ledger.IsValid() {
		return nil, shared.NewDomainError("INVALID_LEDGER", "Ledger must be RECEIVABLE or PAYABLE")
	}
	if counterpartyID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COUNTERPARTY", "Counterparty ID cannot be empty")
	}
	if !kind.IsValid() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_KIND", "Unsupported document kind")
	}
	if documentNo == "" {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_NO", "Document number cannot be empty")
	}
	if len(documentNo) > 50 {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_NO", "Document number cannot exceed 50 characters")
	}
	if documentDate.IsZero() {
		return nil, shared.NewDomainError("INVALID_DOCUMENT_DATE", "Document date is required")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Document amount cannot be negative")
	}

	amount = valueobject.Round2(amount)
	return &OpenItem{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(tenantID),
		Ledger:              ledger,
		CounterpartyID:      counterpartyID,
		Kind:                kind,
		DocumentNo:          documentNo,
		DocumentDate:        documentDate,
		Amount:              amount,
		Balance:             amount,
		DiscountAmount:      decimal.Zero,
	}, nil
}

// SetBalance sets the open balance, which may not exceed the document amount
func (i *OpenItem) SetBalance(balance decimal.Decimal) error {
	balance = valueobject.Round2(balance)
	if balance.IsNegative() || balance.GreaterThan(i.Amount) {
		return shared.NewDomainError("INVALID_BALANCE", "Balance must be between zero and the document amount")
	}
	i.Balance = balance
	i.Touch()
	return nil
}

// OfferDiscount records early settlement discount terms
func (i *OpenItem) OfferDiscount(amount decimal.Decimal, dueDate *time.Time) error {
	amount = valueobject.Round2(amount)
	if amount.IsNegative() || amount.GreaterThan(i.Amount) {
		return shared.NewDomainError("INVALID_DISCOUNT", "Discount must be between zero and the document amount")
	}
	i.DiscountAmount = amount
	i.DiscountDueDate = dueDate
	i.Touch()
	return nil
}

// IsOpen returns true while a balance remains
func (i *OpenItem) IsOpen() bool {
	return i.Balance.IsPositive()
}

// Settle clears amount from the open balance
func (i *OpenItem) Settle(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return shared.NewDomainError("INVALID_AMOUNT", "Settled amount cannot be negative")
	}
	if amount.GreaterThan(i.Balance) {
		return shared.ErrInsufficientBalance
	}
	i.Balance = i.Balance.Sub(amount)
	i.IncrementVersion()
	i.Touch()
	return nil
}
