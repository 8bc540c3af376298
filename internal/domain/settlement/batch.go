package settlement

import (
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Batch is the allocation state of one settlement for one counterparty.
// It owns its method rows and its document rows; every exported operation
// leaves the batch consistent:
//
//	sum(applied) <= total
//	applied + effective discount <= original, per row
//	remaining = total - sum(applied), always recomputed
type Batch struct {
	id               uuid.UUID
	tenantID         uuid.UUID
	settlementType   SettlementType
	counterpartyID   uuid.UUID
	mode             Mode
	settlementDate   time.Time
	recordID         *uuid.UUID
	reabsorbDiscount bool
	sortKey          SortKey
	sortDirection    SortDirection
	methods          []MethodLine
	documents        []*OutstandingDocument
}

// BatchOption configures a Batch
type BatchOption func(*Batch)

// WithDiscountReabsorb controls whether turning a discount off pulls unapplied
// money back into the row (default on)
func WithDiscountReabsorb(enabled bool) BatchOption {
	return func(b *Batch) {
		b.reabsorbDiscount = enabled
	}
}

// WithSettlementDate sets the settlement date (default today)
func WithSettlementDate(date time.Time) BatchOption {
	return func(b *Batch) {
		b.settlementDate = date
	}
}

// NewBatch creates an empty batch in NEW mode
func NewBatch(tenantID uuid.UUID, settlementType SettlementType, opts ...BatchOption) (*Batch, error) {
	if !settlementType.IsValid() {
		return nil, shared.NewDomainError("INVALID_SETTLEMENT_TYPE", "Unsupported settlement type")
	}
	b := &Batch{
		id:               uuid.New(),
		tenantID:         tenantID,
		settlementType:   settlementType,
		mode:             ModeNew,
		settlementDate:   time.Now(),
		reabsorbDiscount: true,
		methods:          make([]MethodLine, 0),
		documents:        make([]*OutstandingDocument, 0),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Batch) ID() uuid.UUID             { return b.id }
func (b *Batch) TenantID() uuid.UUID       { return b.tenantID }
func (b *Batch) Type() SettlementType      { return b.settlementType }
func (b *Batch) Ledger() Ledger            { return b.settlementType.Ledger() }
func (b *Batch) CounterpartyID() uuid.UUID { return b.counterpartyID }
func (b *Batch) Mode() Mode                { return b.mode }
func (b *Batch) SettlementDate() time.Time { return b.settlementDate }
func (b *Batch) RecordID() *uuid.UUID      { return b.recordID }
func (b *Batch) ReabsorbsDiscount() bool   { return b.reabsorbDiscount }

// Sorting returns the active sort, empty when rows are in load order
func (b *Batch) Sorting() (SortKey, SortDirection) {
	return b.sortKey, b.sortDirection
}

// Methods returns a copy of the method rows
func (b *Batch) Methods() []MethodLine {
	return cloneMethods(b.methods)
}

// Documents returns copies of the document rows in display order
func (b *Batch) Documents() []OutstandingDocument {
	out := make([]OutstandingDocument, len(b.documents))
	for i, d := range b.documents {
		out[i] = *d.clone()
	}
	return out
}

// Document returns a copy of one row
func (b *Batch) Document(documentNo string) (OutstandingDocument, error) {
	d, err := b.document(documentNo)
	if err != nil {
		return OutstandingDocument{}, err
	}
	return *d.clone(), nil
}

// Total returns the settlement total derived from the method rows
func (b *Batch) Total() decimal.Decimal {
	return NewSettlementTotal(b.methods).Total()
}

// AppliedTotal returns the sum of applied amounts
func (b *Batch) AppliedTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range b.documents {
		sum = sum.Add(d.AppliedAmount)
	}
	return sum
}

// DiscountTotal returns the sum of discounts taken
func (b *Batch) DiscountTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range b.documents {
		if d.Selected() {
			sum = sum.Add(d.EffectiveDiscount())
		}
	}
	return sum
}

// Remaining returns total - sum(applied)
func (b *Batch) Remaining() decimal.Decimal {
	return b.Total().Sub(b.AppliedTotal())
}

// IsBalanced reports whether the whole total has been applied
func (b *Batch) IsBalanced() bool {
	return b.Remaining().IsZero()
}

// RowLocked reports whether a row currently rejects edits
func (b *Batch) RowLocked(documentNo string) (bool, error) {
	d, err := b.document(documentNo)
	if err != nil {
		return false, err
	}
	return b.locked(d), nil
}

// SetMethods replaces the method rows. A lower total pulls applied amounts back
// from the last rows until the batch fits again.
func (b *Batch) SetMethods(lines []MethodLine) error {
	if !MethodsEditable(b.mode) {
		return ErrSettlementLocked
	}
	for _, l := range lines {
		if !l.Method.IsValid() {
			return shared.NewDomainError("INVALID_PAYMENT_METHOD", "Unsupported payment method: "+string(l.Method))
		}
	}

	before := b.Total()
	normalized := cloneMethods(lines)
	for i := range normalized {
		normalized[i].Amount = valueobject.Round2(normalized[i].Amount)
		normalized[i].Deduction = valueobject.Round2(normalized[i].Deduction)
	}
	b.methods = normalized

	if b.Total().LessThan(before) {
		b.NormalizeToTotal()
	}
	return nil
}

// SetPostDated flips the post-dated cheque flag of one method row.
// It is the only change an EDIT mode batch accepts.
func (b *Batch) SetPostDated(index int, postDated bool, chequeDate *time.Time) error {
	if !PostDatedEditable(b.mode) {
		return ErrSettlementLocked
	}
	if index < 0 || index >= len(b.methods) {
		return shared.NewDomainError("INVALID_METHOD_INDEX", "Method row does not exist")
	}
	b.methods[index].PostDated = postDated
	if chequeDate != nil {
		d := *chequeDate
		b.methods[index].ChequeDate = &d
	} else if !postDated {
		b.methods[index].ChequeDate = nil
	}
	return nil
}

// LoadDocuments replaces the document set with copies of the counterparty's open items.
// Applied amounts start at zero, so remaining resets to the total.
func (b *Batch) LoadDocuments(counterpartyID uuid.UUID, items []OpenItem) error {
	if b.mode != ModeNew {
		return ErrSettlementLocked
	}

	seen := make(map[string]struct{}, len(items))
	docs := make([]*OutstandingDocument, 0, len(items))
	for _, item := range items {
		if item.CounterpartyID != counterpartyID || item.Ledger != b.Ledger() || !item.IsOpen() {
			continue
		}
		if _, dup := seen[item.DocumentNo]; dup {
			return duplicateDocument(item.DocumentNo)
		}
		seen[item.DocumentNo] = struct{}{}
		docs = append(docs, documentFromOpenItem(item, len(docs)))
	}

	b.counterpartyID = counterpartyID
	b.documents = docs
	if b.sortKey != "" {
		b.applySort()
	}
	return nil
}

// ToggleSelection checks or unchecks a row. Checking applies as much of the
// row as the rest of the batch leaves available; unchecking clears it.
// Locked rows ignore the request.
func (b *Batch) ToggleSelection(documentNo string, checked bool) error {
	d, err := b.document(documentNo)
	if err != nil {
		return err
	}
	if b.locked(d) {
		return nil
	}

	if !checked {
		d.AppliedAmount = decimal.Zero
		return nil
	}
	d.AppliedAmount = decimal.Min(d.Cap(), b.remainingBefore(d))
	return nil
}

// AdjustmentReason explains why an entered amount was not applied as typed
type AdjustmentReason string

const (
	AdjustmentNone              AdjustmentReason = ""
	AdjustmentNegative          AdjustmentReason = "NEGATIVE"
	AdjustmentCappedOutstanding AdjustmentReason = "CAPPED_AT_OUTSTANDING"
	AdjustmentCappedRemaining   AdjustmentReason = "CAPPED_AT_REMAINING"
	AdjustmentRowLocked         AdjustmentReason = "ROW_LOCKED"
)

// AmountAdjustment reports what SetAppliedAmount did with the entered value
type AmountAdjustment struct {
	DocumentNo string
	Requested  decimal.Decimal
	Applied    decimal.Decimal
	Reason     AdjustmentReason
}

// Adjusted is true when the applied amount differs from the request
func (a AmountAdjustment) Adjusted() bool {
	return a.Reason != AdjustmentNone
}

// SetAppliedAmount applies a typed amount to a row. The value is clamped to the
// row's cap and then to what the rest of the batch leaves available; an
// oversized entry is truncated, never rejected.
func (b *Batch) SetAppliedAmount(documentNo string, raw string) (AmountAdjustment, error) {
	d, err := b.document(documentNo)
	if err != nil {
		return AmountAdjustment{}, err
	}

	requested := valueobject.Round2(valueobject.ParseAmount(raw))
	adj := AmountAdjustment{DocumentNo: documentNo, Requested: requested}
	if b.locked(d) {
		adj.Applied = d.AppliedAmount
		adj.Reason = AdjustmentRowLocked
		return adj, nil
	}

	applied := requested
	if applied.IsNegative() {
		applied = decimal.Zero
		adj.Reason = AdjustmentNegative
	}
	if limit := d.Cap(); applied.GreaterThan(limit) {
		applied = limit
		adj.Reason = AdjustmentCappedOutstanding
	}
	if limit := b.remainingBefore(d); applied.GreaterThan(limit) {
		applied = limit
		adj.Reason = AdjustmentCappedRemaining
	}

	d.AppliedAmount = applied
	adj.Applied = applied
	return adj, nil
}

// SetDiscount sets the discount amount and whether it is taken. Taking a
// discount lowers the row's cap and pulls the applied amount down to it.
// Dropping a discount lets the row absorb unapplied money again, up to the
// original amount, when the batch re-absorbs discounts.
func (b *Batch) SetDiscount(documentNo string, withDiscount bool, raw string) error {
	d, err := b.document(documentNo)
	if err != nil {
		return err
	}
	if b.locked(d) {
		return nil
	}

	wasTaken := d.WithDiscount
	d.DiscountAmount = valueobject.Clamp(valueobject.Round2(valueobject.ParseAmount(raw)), decimal.Zero, d.OriginalAmount)
	d.WithDiscount = withDiscount

	if withDiscount {
		if d.AppliedAmount.GreaterThan(d.Cap()) {
			d.AppliedAmount = d.Cap()
		}
		return nil
	}

	if wasTaken && b.reabsorbDiscount && d.AppliedAmount.IsPositive() {
		headroom := d.OriginalAmount.Sub(d.AppliedAmount)
		extra := decimal.Min(valueobject.NonNegative(b.Remaining()), headroom)
		if extra.IsPositive() {
			d.AppliedAmount = d.AppliedAmount.Add(extra)
		}
	}
	return nil
}

// NormalizeToTotal reduces applied amounts from the last row towards the first
// until the applied total no longer exceeds the settlement total.
func (b *Batch) NormalizeToTotal() {
	excess := b.AppliedTotal().Sub(b.Total())
	for i := len(b.documents) - 1; i >= 0 && excess.IsPositive(); i-- {
		d := b.documents[i]
		if !d.AppliedAmount.IsPositive() {
			continue
		}
		cut := decimal.Min(d.AppliedAmount, excess)
		d.AppliedAmount = d.AppliedAmount.Sub(cut)
		excess = excess.Sub(cut)
	}
}

// CheckInvariants verifies the batch's consistency rules
func (b *Batch) CheckInvariants() error {
	if b.AppliedTotal().GreaterThan(b.Total()) {
		return shared.NewDomainError("INVARIANT_VIOLATION", "Applied total exceeds settlement total")
	}
	for _, d := range b.documents {
		if d.AppliedAmount.IsNegative() {
			return shared.NewDomainError("INVARIANT_VIOLATION", "Negative applied amount on "+d.DocumentNo)
		}
		if d.DiscountAmount.IsNegative() || d.DiscountAmount.GreaterThan(d.OriginalAmount) {
			return shared.NewDomainError("INVARIANT_VIOLATION", "Discount out of range on "+d.DocumentNo)
		}
		if d.AppliedAmount.Add(d.EffectiveDiscount()).GreaterThan(d.OriginalAmount) {
			return shared.NewDomainError("INVARIANT_VIOLATION", "Over-allocated document "+d.DocumentNo)
		}
	}
	return nil
}

// remainingBefore is what the batch could give this row if the row held nothing
func (b *Batch) remainingBefore(d *OutstandingDocument) decimal.Decimal {
	return valueobject.NonNegative(b.Remaining().Add(d.AppliedAmount))
}

func (b *Batch) locked(d *OutstandingDocument) bool {
	return RowLocked(b.mode, b.Remaining(), d.Selected())
}

func (b *Batch) document(documentNo string) (*OutstandingDocument, error) {
	for _, d := range b.documents {
		if d.DocumentNo == documentNo {
			return d, nil
		}
	}
	return nil, documentNotFound(documentNo)
}
