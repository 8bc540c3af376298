package handler

import (
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// MethodLineRequest is one tendered amount of a settlement
type MethodLineRequest struct {
	Method     string     `json:"method" binding:"required,oneof=CASH CHEQUE BANK_TRANSFER CARD DOCUMENT OTHER"`
	Reference  string     `json:"reference" binding:"max=100"`
	Amount     string     `json:"amount" binding:"required,amount"`
	Deduction  string     `json:"deduction" binding:"amount"`
	PostDated  bool       `json:"post_dated"`
	ChequeDate *time.Time `json:"cheque_date"`
}

// OpenSessionRequest opens a NEW settlement session
type OpenSessionRequest struct {
	Type           string              `json:"type" binding:"required"`
	CounterpartyID *uuid.UUID          `json:"counterparty_id"`
	SettlementDate *time.Time          `json:"settlement_date"`
	Methods        []MethodLineRequest `json:"methods" binding:"dive"`
}

// SetMethodsRequest replaces the method lines of a session
type SetMethodsRequest struct {
	Methods []MethodLineRequest `json:"methods" binding:"dive"`
}

// ChangeCounterpartyRequest switches the counterparty and reloads documents
type ChangeCounterpartyRequest struct {
	CounterpartyID uuid.UUID `json:"counterparty_id" binding:"required"`
}

// PostDatedRequest flags a method line as post-dated
type PostDatedRequest struct {
	PostDated  bool       `json:"post_dated"`
	ChequeDate *time.Time `json:"cheque_date"`
}

// SelectionRequest checks or unchecks a document row
type SelectionRequest struct {
	Selected bool `json:"selected"`
}

// AppliedAmountRequest types an applied amount into a document row.
// The amount is parsed leniently; unreadable input counts as zero.
type AppliedAmountRequest struct {
	Amount string `json:"amount" binding:"max=64"`
}

// DiscountRequest turns the early payment discount of a row on or off
type DiscountRequest struct {
	WithDiscount bool   `json:"with_discount"`
	Amount       string `json:"amount" binding:"amount"`
}

// AutoAllocateRequest fills document rows from the remaining amount
type AutoAllocateRequest struct {
	Scope    string `json:"scope"`
	Strategy string `json:"strategy"`
}

// SortRequest reorders document rows
type SortRequest struct {
	Key       string `json:"key" binding:"required"`
	Direction string `json:"direction"`
}

// SaveSessionRequest saves a session
type SaveSessionRequest struct {
	AcceptRemainder bool   `json:"accept_remainder"`
	Remark          string `json:"remark" binding:"max=500"`
}

// ReopenRequest opens a saved settlement for editing or viewing
type ReopenRequest struct {
	Mode string `json:"mode" binding:"omitempty,oneof=EDIT VIEW edit view"`
}

func (r MethodLineRequest) toDomain() settlement.MethodLine {
	return settlement.MethodLine{
		Method:     settlement.PaymentMethod(strings.ToUpper(r.Method)),
		Reference:  strings.TrimSpace(r.Reference),
		Amount:     valueobject.ParseAmount(r.Amount),
		Deduction:  valueobject.ParseAmount(r.Deduction),
		PostDated:  r.PostDated,
		ChequeDate: r.ChequeDate,
	}
}

func toMethodLines(reqs []MethodLineRequest) []settlement.MethodLine {
	if len(reqs) == 0 {
		return nil
	}
	lines := make([]settlement.MethodLine, len(reqs))
	for i, r := range reqs {
		lines[i] = r.toDomain()
	}
	return lines
}
