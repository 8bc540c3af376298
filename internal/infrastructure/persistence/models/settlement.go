package models

import (
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OpenItemModel is the persistence model for the open item catalog
type OpenItemModel struct {
	ID              uuid.UUID               `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_open_item_document,priority:1"`
	Version         int                     `gorm:"not null;default:1"`
	CreatedBy       *uuid.UUID              `gorm:"type:uuid"`
	CreatedAt       time.Time               `gorm:"not null"`
	UpdatedAt       time.Time               `gorm:"not null"`
	Ledger          settlement.Ledger       `gorm:"type:varchar(20);not null;uniqueIndex:idx_open_item_document,priority:2"`
	CounterpartyID  uuid.UUID               `gorm:"type:uuid;not null;uniqueIndex:idx_open_item_document,priority:3"`
	Kind            settlement.DocumentKind `gorm:"type:varchar(20);not null"`
	DocumentNo      string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_open_item_document,priority:4"`
	DocumentDate    time.Time               `gorm:"not null;index"`
	Amount          decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Balance         decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	DiscountAmount  decimal.Decimal         `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountDueDate *time.Time
}

// TableName returns the table name for GORM
func (OpenItemModel) TableName() string {
	return "open_items"
}

// ToDomain converts the persistence model to a domain OpenItem
func (m *OpenItemModel) ToDomain() *settlement.OpenItem {
	return &settlement.OpenItem{
		TenantAggregateRoot: m.header().ToDomain(),
		Ledger:              m.Ledger,
		CounterpartyID:      m.CounterpartyID,
		Kind:                m.Kind,
		DocumentNo:          m.DocumentNo,
		DocumentDate:        m.DocumentDate,
		Amount:              m.Amount,
		Balance:             m.Balance,
		DiscountAmount:      m.DiscountAmount,
		DiscountDueDate:     m.DiscountDueDate,
	}
}

// OpenItemModelFromDomain creates a persistence model from a domain OpenItem
func OpenItemModelFromDomain(item *settlement.OpenItem) *OpenItemModel {
	m := &OpenItemModel{
		ID:              item.ID,
		TenantID:        item.TenantID,
		Version:         item.Version,
		CreatedBy:       item.CreatedBy,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
		Ledger:          item.Ledger,
		CounterpartyID:  item.CounterpartyID,
		Kind:            item.Kind,
		DocumentNo:      item.DocumentNo,
		DocumentDate:    item.DocumentDate,
		Amount:          item.Amount,
		Balance:         item.Balance,
		DiscountAmount:  item.DiscountAmount,
		DiscountDueDate: item.DiscountDueDate,
	}
	return m
}

func (m *OpenItemModel) header() *TenantAggregateModel {
	return &TenantAggregateModel{
		ID:        m.ID,
		TenantID:  m.TenantID,
		Version:   m.Version,
		CreatedBy: m.CreatedBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// SettlementRecordModel is the persistence model for a saved settlement
type SettlementRecordModel struct {
	TenantAggregateModel
	SettlementNumber string                    `gorm:"type:varchar(50);not null;uniqueIndex"`
	Type             settlement.SettlementType `gorm:"type:varchar(20);not null;index"`
	CounterpartyID   uuid.UUID                 `gorm:"type:uuid;not null;index"`
	SettlementDate   time.Time                 `gorm:"not null"`
	TotalAmount      decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	AppliedAmount    decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	DiscountAmount   decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	UnappliedAmount  decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	Remark           string                    `gorm:"type:text"`
	Methods          []SettlementMethodModel   `gorm:"foreignKey:SettlementID;references:ID"`
	Lines            []SettlementLineModel     `gorm:"foreignKey:SettlementID;references:ID"`
}

// TableName returns the table name for GORM
func (SettlementRecordModel) TableName() string {
	return "settlements"
}

// SettlementMethodModel stores one payment method row of a settlement
type SettlementMethodModel struct {
	SettlementID uuid.UUID                `gorm:"type:uuid;primaryKey"`
	LineNo       int                      `gorm:"primaryKey;autoIncrement:false"`
	Method       settlement.PaymentMethod `gorm:"type:varchar(20);not null"`
	Reference    string                   `gorm:"type:varchar(100)"`
	Amount       decimal.Decimal          `gorm:"type:decimal(18,4);not null"`
	Deduction    decimal.Decimal          `gorm:"type:decimal(18,4);not null;default:0"`
	PostDated    bool                     `gorm:"not null;default:false"`
	ChequeDate   *time.Time
}

// TableName returns the table name for GORM
func (SettlementMethodModel) TableName() string {
	return "settlement_methods"
}

// SettlementLineModel stores what a settlement applied to one document
type SettlementLineModel struct {
	ID             uuid.UUID               `gorm:"type:uuid;primary_key"`
	SettlementID   uuid.UUID               `gorm:"type:uuid;not null;index"`
	LineNo         int                     `gorm:"not null"`
	OpenItemID     uuid.UUID               `gorm:"type:uuid;not null;index"`
	Kind           settlement.DocumentKind `gorm:"type:varchar(20);not null"`
	DocumentNo     string                  `gorm:"type:varchar(50);not null"`
	DocumentDate   time.Time               `gorm:"not null"`
	OriginalAmount decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	DiscountAmount decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	AppliedAmount  decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (SettlementLineModel) TableName() string {
	return "settlement_lines"
}

// ToDomain converts the persistence model, with preloaded children, to a domain record
func (m *SettlementRecordModel) ToDomain() *settlement.SettlementRecord {
	r := &settlement.SettlementRecord{
		TenantAggregateRoot: m.TenantAggregateModel.ToDomain(),
		SettlementNumber:    m.SettlementNumber,
		Type:                m.Type,
		CounterpartyID:      m.CounterpartyID,
		SettlementDate:      m.SettlementDate,
		TotalAmount:         m.TotalAmount,
		AppliedAmount:       m.AppliedAmount,
		DiscountAmount:      m.DiscountAmount,
		UnappliedAmount:     m.UnappliedAmount,
		Remark:              m.Remark,
		Methods:             make([]settlement.MethodLine, len(m.Methods)),
		Lines:               make([]settlement.SettlementLine, len(m.Lines)),
	}
	for i, mm := range m.Methods {
		r.Methods[i] = settlement.MethodLine{
			Method:     mm.Method,
			Reference:  mm.Reference,
			Amount:     mm.Amount,
			Deduction:  mm.Deduction,
			PostDated:  mm.PostDated,
			ChequeDate: mm.ChequeDate,
		}
	}
	for i, lm := range m.Lines {
		r.Lines[i] = settlement.SettlementLine{
			ID:             lm.ID,
			OpenItemID:     lm.OpenItemID,
			Kind:           lm.Kind,
			DocumentNo:     lm.DocumentNo,
			DocumentDate:   lm.DocumentDate,
			OriginalAmount: lm.OriginalAmount,
			DiscountAmount: lm.DiscountAmount,
			AppliedAmount:  lm.AppliedAmount,
		}
	}
	return r
}

// SettlementRecordModelFromDomain creates a persistence model, children included
func SettlementRecordModelFromDomain(r *settlement.SettlementRecord) *SettlementRecordModel {
	m := &SettlementRecordModel{
		SettlementNumber: r.SettlementNumber,
		Type:             r.Type,
		CounterpartyID:   r.CounterpartyID,
		SettlementDate:   r.SettlementDate,
		TotalAmount:      r.TotalAmount,
		AppliedAmount:    r.AppliedAmount,
		DiscountAmount:   r.DiscountAmount,
		UnappliedAmount:  r.UnappliedAmount,
		Remark:           r.Remark,
		Methods:          make([]SettlementMethodModel, len(r.Methods)),
		Lines:            make([]SettlementLineModel, len(r.Lines)),
	}
	m.TenantAggregateModel.FromDomain(r.TenantAggregateRoot)
	for i, ml := range r.Methods {
		m.Methods[i] = SettlementMethodModel{
			SettlementID: r.ID,
			LineNo:       i + 1,
			Method:       ml.Method,
			Reference:    ml.Reference,
			Amount:       ml.Amount,
			Deduction:    ml.Deduction,
			PostDated:    ml.PostDated,
			ChequeDate:   ml.ChequeDate,
		}
	}
	for i, l := range r.Lines {
		m.Lines[i] = SettlementLineModel{
			ID:             l.ID,
			SettlementID:   r.ID,
			LineNo:         i + 1,
			OpenItemID:     l.OpenItemID,
			Kind:           l.Kind,
			DocumentNo:     l.DocumentNo,
			DocumentDate:   l.DocumentDate,
			OriginalAmount: l.OriginalAmount,
			DiscountAmount: l.DiscountAmount,
			AppliedAmount:  l.AppliedAmount,
		}
	}
	return m
}

// All lists every model for AutoMigrate on local sqlite databases
func All() []any {
	return []any{
		&OpenItemModel{},
		&SettlementRecordModel{},
		&SettlementMethodModel{},
		&SettlementLineModel{},
	}
}
