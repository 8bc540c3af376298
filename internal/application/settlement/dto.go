package settlement

import (
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenSessionRequest starts a NEW settlement session
type OpenSessionRequest struct {
	Type           settlement.SettlementType
	CounterpartyID uuid.UUID // optional; documents load when set
	SettlementDate time.Time // zero means today
	Methods        []settlement.MethodLine
}

// SaveRequest carries the options of a save
type SaveRequest struct {
	AcceptRemainder bool
	Remark          string
	CreatedBy       *uuid.UUID
	IdempotencyKey  string
}

// MethodLineView is one method row of a session
type MethodLineView struct {
	Index      int             `json:"index"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Deduction  decimal.Decimal `json:"deduction"`
	Net        decimal.Decimal `json:"net"`
	PostDated  bool            `json:"post_dated"`
	ChequeDate *time.Time      `json:"cheque_date,omitempty"`
}

// DocumentView is one document row of a session
type DocumentView struct {
	OpenItemID      uuid.UUID       `json:"open_item_id"`
	Kind            string          `json:"kind"`
	DocumentNo      string          `json:"document_no"`
	DocumentDate    time.Time       `json:"document_date"`
	DiscountDueDate *time.Time      `json:"discount_due_date,omitempty"`
	OriginalAmount  decimal.Decimal `json:"original_amount"`
	WithDiscount    bool            `json:"with_discount"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	AppliedAmount   decimal.Decimal `json:"applied_amount"`
	Outstanding     decimal.Decimal `json:"outstanding"`
	State           string          `json:"state"`
	Selected        bool            `json:"selected"`
	Locked          bool            `json:"locked"`
}

// AdjustmentView reports how an entered amount was clamped
type AdjustmentView struct {
	DocumentNo string          `json:"document_no"`
	Requested  decimal.Decimal `json:"requested"`
	Applied    decimal.Decimal `json:"applied"`
	Reason     string          `json:"reason"`
}

// SessionView is the state of a settlement session after an operation
type SessionView struct {
	ID             uuid.UUID        `json:"id"`
	Type           string           `json:"type"`
	Ledger         string           `json:"ledger"`
	Mode           string           `json:"mode"`
	CounterpartyID *uuid.UUID       `json:"counterparty_id,omitempty"`
	SettlementDate time.Time        `json:"settlement_date"`
	RecordID       *uuid.UUID       `json:"record_id,omitempty"`
	Methods        []MethodLineView `json:"methods"`
	Documents      []DocumentView   `json:"documents"`
	Total          decimal.Decimal  `json:"total"`
	AppliedTotal   decimal.Decimal  `json:"applied_total"`
	DiscountTotal  decimal.Decimal  `json:"discount_total"`
	Remaining      decimal.Decimal  `json:"remaining"`
	Balanced       bool             `json:"balanced"`
	SavePolicy     string           `json:"save_policy"`
	CanSave        bool             `json:"can_save"`
	SortKey        string           `json:"sort_key,omitempty"`
	SortDirection  string           `json:"sort_direction,omitempty"`
	Adjustment     *AdjustmentView  `json:"adjustment,omitempty"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

// SettlementLineResponse is one cleared document of a saved settlement
type SettlementLineResponse struct {
	OpenItemID     uuid.UUID       `json:"open_item_id"`
	Kind           string          `json:"kind"`
	DocumentNo     string          `json:"document_no"`
	DocumentDate   time.Time       `json:"document_date"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	AppliedAmount  decimal.Decimal `json:"applied_amount"`
}

// SettlementResponse represents a saved settlement
type SettlementResponse struct {
	ID               uuid.UUID                `json:"id"`
	TenantID         uuid.UUID                `json:"tenant_id"`
	SettlementNumber string                   `json:"settlement_number"`
	Type             string                   `json:"type"`
	Ledger           string                   `json:"ledger"`
	CounterpartyID   uuid.UUID                `json:"counterparty_id"`
	SettlementDate   time.Time                `json:"settlement_date"`
	Methods          []MethodLineView         `json:"methods"`
	TotalAmount      decimal.Decimal          `json:"total_amount"`
	AppliedAmount    decimal.Decimal          `json:"applied_amount"`
	DiscountAmount   decimal.Decimal          `json:"discount_amount"`
	UnappliedAmount  decimal.Decimal          `json:"unapplied_amount"`
	Lines            []SettlementLineResponse `json:"lines"`
	Remark           string                   `json:"remark,omitempty"`
	Version          int                      `json:"version"`
	CreatedBy        *uuid.UUID               `json:"created_by,omitempty"`
	CreatedAt        time.Time                `json:"created_at"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// StrategyResponse describes a registered allocation strategy
type StrategyResponse struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	SupportsPartial bool   `json:"supports_partial"`
	IsDefault       bool   `json:"is_default"`
}

func toMethodViews(lines []settlement.MethodLine) []MethodLineView {
	out := make([]MethodLineView, 0, len(lines))
	for i, m := range lines {
		out = append(out, MethodLineView{
			Index:      i,
			Method:     string(m.Method),
			Reference:  m.Reference,
			Amount:     m.Amount,
			Deduction:  m.Deduction,
			Net:        m.Net(),
			PostDated:  m.PostDated,
			ChequeDate: m.ChequeDate,
		})
	}
	return out
}

func toSessionView(b *settlement.Batch, draft *settlement.Draft, policy settlement.SavePolicy, adj *settlement.AmountAdjustment) *SessionView {
	remaining := b.Remaining()
	view := &SessionView{
		ID:             b.ID(),
		Type:           string(b.Type()),
		Ledger:         string(b.Ledger()),
		Mode:           b.Mode().String(),
		SettlementDate: b.SettlementDate(),
		RecordID:       b.RecordID(),
		Methods:        toMethodViews(b.Methods()),
		Total:          b.Total(),
		AppliedTotal:   b.AppliedTotal(),
		DiscountTotal:  b.DiscountTotal(),
		Remaining:      remaining,
		Balanced:       b.IsBalanced(),
		SavePolicy:     string(policy),
		CanSave:        canSave(b, policy),
		ExpiresAt:      draft.ExpiresAt,
	}
	if id := b.CounterpartyID(); id != uuid.Nil {
		view.CounterpartyID = &id
	}
	if key, dir := b.Sorting(); key != "" {
		view.SortKey = string(key)
		view.SortDirection = string(dir)
	}

	docs := b.Documents()
	view.Documents = make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		view.Documents = append(view.Documents, DocumentView{
			OpenItemID:      d.OpenItemID,
			Kind:            string(d.Kind),
			DocumentNo:      d.DocumentNo,
			DocumentDate:    d.DocumentDate,
			DiscountDueDate: d.DiscountDueDate,
			OriginalAmount:  d.OriginalAmount,
			WithDiscount:    d.WithDiscount,
			DiscountAmount:  d.DiscountAmount,
			AppliedAmount:   d.AppliedAmount,
			Outstanding:     d.Outstanding(),
			State:           string(d.State()),
			Selected:        d.Selected(),
			Locked:          settlement.RowLocked(b.Mode(), remaining, d.Selected()),
		})
	}

	if adj != nil {
		view.Adjustment = &AdjustmentView{
			DocumentNo: adj.DocumentNo,
			Requested:  adj.Requested,
			Applied:    adj.Applied,
			Reason:     string(adj.Reason),
		}
	}
	return view
}

// canSave reports whether Save would succeed without accepting a remainder
func canSave(b *settlement.Batch, policy settlement.SavePolicy) bool {
	switch b.Mode() {
	case settlement.ModeNew:
		return b.CounterpartyID() != uuid.Nil &&
			b.Total().IsPositive() &&
			policy.Permits(b.Remaining(), false) == nil
	case settlement.ModeEdit:
		return true
	default:
		return false
	}
}

func toSettlementResponse(r *settlement.SettlementRecord) *SettlementResponse {
	lines := make([]SettlementLineResponse, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, SettlementLineResponse{
			OpenItemID:     l.OpenItemID,
			Kind:           string(l.Kind),
			DocumentNo:     l.DocumentNo,
			DocumentDate:   l.DocumentDate,
			OriginalAmount: l.OriginalAmount,
			DiscountAmount: l.DiscountAmount,
			AppliedAmount:  l.AppliedAmount,
		})
	}
	return &SettlementResponse{
		ID:               r.ID,
		TenantID:         r.TenantID,
		SettlementNumber: r.SettlementNumber,
		Type:             string(r.Type),
		Ledger:           string(r.Ledger()),
		CounterpartyID:   r.CounterpartyID,
		SettlementDate:   r.SettlementDate,
		Methods:          toMethodViews(r.Methods),
		TotalAmount:      r.TotalAmount,
		AppliedAmount:    r.AppliedAmount,
		DiscountAmount:   r.DiscountAmount,
		UnappliedAmount:  r.UnappliedAmount,
		Lines:            lines,
		Remark:           r.Remark,
		Version:          r.Version,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}
