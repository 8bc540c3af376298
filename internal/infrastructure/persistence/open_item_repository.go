package persistence

import (
	"context"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormOpenItemRepository implements settlement.OpenItemRepository using GORM
type GormOpenItemRepository struct {
	db *gorm.DB
}

// NewGormOpenItemRepository creates a new GormOpenItemRepository
func NewGormOpenItemRepository(db *gorm.DB) *GormOpenItemRepository {
	return &GormOpenItemRepository{db: db}
}

// FindOpenItems returns the counterparty's items that still carry a balance,
// oldest document first
func (r *GormOpenItemRepository) FindOpenItems(ctx context.Context, tenantID uuid.UUID, ledger settlement.Ledger, counterpartyID uuid.UUID) ([]settlement.OpenItem, error) {
	var rows []models.OpenItemModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND ledger = ? AND counterparty_id = ?", tenantID, ledger, counterpartyID).
		Where("balance > 0").
		Order("document_date ASC, document_no ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	items := make([]settlement.OpenItem, len(rows))
	for i := range rows {
		items[i] = *rows[i].ToDomain()
	}
	return items, nil
}

// Upsert inserts items, replacing the amounts and terms of an existing item
// with the same ledger, counterparty and document number. A replaced item's
// version is bumped so an in-flight save against the old balance fails.
func (r *GormOpenItemRepository) Upsert(ctx context.Context, items []*settlement.OpenItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]*models.OpenItemModel, len(items))
	for i, item := range items {
		rows[i] = models.OpenItemModelFromDomain(item)
		rows[i].UpdatedAt = time.Now()
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "tenant_id"}, {Name: "ledger"}, {Name: "counterparty_id"}, {Name: "document_no"},
			},
			DoUpdates: append(clause.AssignmentColumns([]string{
				"kind", "document_date", "amount", "balance",
				"discount_amount", "discount_due_date", "updated_at",
			}), clause.Assignment{Column: clause.Column{Name: "version"}, Value: gorm.Expr("version + 1")}),
		}).
		CreateInBatches(rows, 100).Error
}
