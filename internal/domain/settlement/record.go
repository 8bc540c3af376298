package settlement

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementLine records what a saved settlement did to one document
type SettlementLine struct {
	ID             uuid.UUID
	OpenItemID     uuid.UUID
	Kind           DocumentKind
	DocumentNo     string
	DocumentDate   time.Time
	OriginalAmount decimal.Decimal
	DiscountAmount decimal.Decimal // discount taken
	AppliedAmount  decimal.Decimal
}

// Cleared returns how much of the open balance the line removes
func (l SettlementLine) Cleared() decimal.Decimal {
	return l.AppliedAmount.Add(l.DiscountAmount)
}

// SettlementRecord is a saved settlement
type SettlementRecord struct {
	shared.TenantAggregateRoot
	SettlementNumber string
	Type             SettlementType
	CounterpartyID   uuid.UUID
	SettlementDate   time.Time
	Methods          []MethodLine
	TotalAmount      decimal.Decimal
	AppliedAmount    decimal.Decimal
	DiscountAmount   decimal.Decimal
	UnappliedAmount  decimal.Decimal
	Lines            []SettlementLine
	Remark           string
}

// NewSettlementNumber builds a settlement number like RCT-20240131-1a2b3c4d
func NewSettlementNumber(t SettlementType, date time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s", t.NumberPrefix(), date.Format("20060102"), suffix)
}

// NewSettlementRecord captures a NEW mode batch as a settlement record.
// Only rows with an applied amount become lines. Whether an unbalanced batch
// may be saved is the caller's SavePolicy decision.
func NewSettlementRecord(b *Batch, number, remark string) (*SettlementRecord, error) {
	if b.Mode() != ModeNew {
		return nil, ErrSettlementLocked
	}
	if strings.TrimSpace(number) == "" {
		return nil, shared.NewDomainError("INVALID_SETTLEMENT_NUMBER", "Settlement number cannot be empty")
	}
	if b.CounterpartyID() == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COUNTERPARTY", "Pick a counterparty before saving")
	}
	if !b.Total().IsPositive() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Settlement amount must be greater than zero")
	}
	if err := b.CheckInvariants(); err != nil {
		return nil, err
	}

	lines := make([]SettlementLine, 0)
	for _, d := range b.Documents() {
		if !d.Selected() {
			continue
		}
		lines = append(lines, SettlementLine{
			ID:             uuid.New(),
			OpenItemID:     d.OpenItemID,
			Kind:           d.Kind,
			DocumentNo:     d.DocumentNo,
			DocumentDate:   d.DocumentDate,
			OriginalAmount: d.OriginalAmount,
			DiscountAmount: d.EffectiveDiscount(),
			AppliedAmount:  d.AppliedAmount,
		})
	}

	r := &SettlementRecord{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(b.TenantID()),
		SettlementNumber:    number,
		Type:                b.Type(),
		CounterpartyID:      b.CounterpartyID(),
		SettlementDate:      b.SettlementDate(),
		Methods:             b.Methods(),
		TotalAmount:         b.Total(),
		AppliedAmount:       b.AppliedTotal(),
		DiscountAmount:      b.DiscountTotal(),
		UnappliedAmount:     b.Remaining(),
		Lines:               lines,
		Remark:              strings.TrimSpace(remark),
	}
	return r, nil
}

// Ledger returns the sub-ledger the record cleared
func (r *SettlementRecord) Ledger() Ledger {
	return r.Type.Ledger()
}

// ApplyMethodFlags copies the post-dated flags of an EDIT batch onto the record
func (r *SettlementRecord) ApplyMethodFlags(b *Batch) error {
	if b.Mode() != ModeEdit {
		return ErrSettlementLocked
	}
	if b.RecordID() == nil || *b.RecordID() != r.ID {
		return shared.NewDomainError("RECORD_MISMATCH", "Session does not belong to this settlement")
	}
	methods := b.Methods()
	if len(methods) != len(r.Methods) {
		return shared.NewDomainError("RECORD_MISMATCH", "Method rows no longer match the saved settlement")
	}
	for i := range r.Methods {
		r.Methods[i].PostDated = methods[i].PostDated
		r.Methods[i].ChequeDate = methods[i].ChequeDate
	}
	r.IncrementVersion()
	r.Touch()
	return nil
}

// ReopenBatch loads a saved settlement into an EDIT or VIEW batch.
// Rows carry the saved applied amounts; every row is locked in both modes.
func ReopenBatch(r *SettlementRecord, mode Mode) (*Batch, error) {
	if mode != ModeEdit && mode != ModeView {
		return nil, shared.NewDomainError("INVALID_MODE", "A saved settlement opens in EDIT or VIEW mode")
	}
	b := &Batch{
		id:               uuid.New(),
		tenantID:         r.TenantID,
		settlementType:   r.Type,
		counterpartyID:   r.CounterpartyID,
		mode:             mode,
		settlementDate:   r.SettlementDate,
		reabsorbDiscount: true,
		methods:          cloneMethods(r.Methods),
		documents:        make([]*OutstandingDocument, 0, len(r.Lines)),
	}
	id := r.ID
	b.recordID = &id

	for i, l := range r.Lines {
		b.documents = append(b.documents, &OutstandingDocument{
			OpenItemID:     l.OpenItemID,
			Kind:           l.Kind,
			DocumentNo:     l.DocumentNo,
			DocumentDate:   l.DocumentDate,
			OriginalAmount: l.OriginalAmount,
			WithDiscount:   l.DiscountAmount.IsPositive(),
			DiscountAmount: l.DiscountAmount,
			AppliedAmount:  valueobject.Round2(l.AppliedAmount),
			loadOrder:      i,
		})
	}
	if err := b.CheckInvariants(); err != nil {
		return nil, err
	}
	return b, nil
}
