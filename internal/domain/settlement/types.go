package settlement

import "strings"

// Ledger identifies which sub-ledger a settlement clears
type Ledger string

const (
	LedgerReceivable Ledger = "RECEIVABLE"
	LedgerPayable    Ledger = "PAYABLE"
)

// IsValid checks if the ledger is valid
func (l Ledger) IsValid() bool {
	return l == LedgerReceivable || l == LedgerPayable
}

// String returns the string representation of Ledger
func (l Ledger) String() string {
	return string(l)
}

// DocumentKind is the type of an open document. All kinds share the same shape.
type DocumentKind string

const (
	DocumentKindInvoice    DocumentKind = "INVOICE"
	DocumentKindDebitNote  DocumentKind = "DEBIT_NOTE"
	DocumentKindCreditNote DocumentKind = "CREDIT_NOTE"
	DocumentKindContra     DocumentKind = "CONTRA"
)

// IsValid checks if the document kind is valid
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindInvoice, DocumentKindDebitNote, DocumentKindCreditNote, DocumentKindContra:
		return true
	}
	return false
}

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// SettlementType is the kind of settlement being entered
type SettlementType string

const (
	SettlementTypeReceipt    SettlementType = "RECEIPT"     // customer pays invoices
	SettlementTypeCreditNote SettlementType = "CREDIT_NOTE" // credit note knocks off invoices
	SettlementTypeContra     SettlementType = "CONTRA"      // A/R side of an A/R vs A/P offset
	SettlementTypePayment    SettlementType = "PAYMENT"     // we pay supplier invoices
	SettlementTypeDebitNote  SettlementType = "DEBIT_NOTE"  // supplier debit note knocks off invoices
	SettlementTypeAPContra   SettlementType = "AP_CONTRA"   // A/P side of an offset
)

// IsValid checks if the settlement type is valid
func (t SettlementType) IsValid() bool {
	switch t {
	case SettlementTypeReceipt, SettlementTypeCreditNote, SettlementTypeContra,
		SettlementTypePayment, SettlementTypeDebitNote, SettlementTypeAPContra:
		return true
	}
	return false
}

// String returns the string representation of SettlementType
func (t SettlementType) String() string {
	return string(t)
}

// Ledger returns the sub-ledger this settlement type clears
func (t SettlementType) Ledger() Ledger {
	switch t {
	case SettlementTypePayment, SettlementTypeDebitNote, SettlementTypeAPContra:
		return LedgerPayable
	}
	return LedgerReceivable
}

// NumberPrefix returns the prefix used for settlement numbers of this type
func (t SettlementType) NumberPrefix() string {
	switch t {
	case SettlementTypeReceipt:
		return "RCT"
	case SettlementTypeCreditNote:
		return "CRN"
	case SettlementTypeContra:
		return "CTR"
	case SettlementTypePayment:
		return "PAY"
	case SettlementTypeDebitNote:
		return "DBN"
	case SettlementTypeAPContra:
		return "APC"
	}
	return "STL"
}

// DefaultSavePolicy returns the save policy a screen of this type uses unless configured otherwise.
// Cash movements may leave money on account; document knock-offs must balance.
func (t SettlementType) DefaultSavePolicy() SavePolicy {
	switch t {
	case SettlementTypeReceipt, SettlementTypePayment:
		return SavePolicyAllowRemainderOnRequest
	}
	return SavePolicyRequireBalanced
}

// AllSettlementTypes returns all valid settlement types
func AllSettlementTypes() []SettlementType {
	return []SettlementType{
		SettlementTypeReceipt,
		SettlementTypeCreditNote,
		SettlementTypeContra,
		SettlementTypePayment,
		SettlementTypeDebitNote,
		SettlementTypeAPContra,
	}
}

// Scope selects which rows auto-allocation may touch
type Scope string

const (
	ScopeAll      Scope = "ALL"
	ScopeSelected Scope = "SELECTED"
)

// IsValid checks if the scope is valid
func (s Scope) IsValid() bool {
	return s == ScopeAll || s == ScopeSelected
}

// ParseScope parses a scope case-insensitively, defaulting to ScopeAll
func ParseScope(raw string) (Scope, error) {
	if raw == "" {
		return ScopeAll, nil
	}
	s := Scope(strings.ToUpper(raw))
	if !s.IsValid() {
		return "", ErrInvalidScope
	}
	return s, nil
}

// SortKey names the column documents are ordered by
type SortKey string

const (
	SortKeyDate       SortKey = "DATE"
	SortKeyDocumentNo SortKey = "DOCUMENT_NO"
	SortKeyAmount     SortKey = "AMOUNT"
	SortKeyKind       SortKey = "KIND"
)

// IsValid checks if the sort key is valid
func (k SortKey) IsValid() bool {
	switch k {
	case SortKeyDate, SortKeyDocumentNo, SortKeyAmount, SortKeyKind:
		return true
	}
	return false
}

// SortDirection is ascending or descending
type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

// IsValid checks if the sort direction is valid
func (d SortDirection) IsValid() bool {
	return d == SortAscending || d == SortDescending
}
