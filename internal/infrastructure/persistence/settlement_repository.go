package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSettlementRepository implements settlement.SettlementRepository using GORM
type GormSettlementRepository struct {
	db *gorm.DB
}

// NewGormSettlementRepository creates a new GormSettlementRepository
func NewGormSettlementRepository(db *gorm.DB) *GormSettlementRepository {
	return &GormSettlementRepository{db: db}
}

// Save inserts the record and its rows and clears every line from its open
// item's balance in one transaction. A concurrent change to any of those
// open items aborts the whole save with ErrConcurrencyConflict.
func (r *GormSettlementRepository) Save(ctx context.Context, record *settlement.SettlementRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, line := range record.Lines {
			if err := settleOpenItem(tx, record.TenantID, line); err != nil {
				return err
			}
		}
		if err := tx.Create(models.SettlementRecordModelFromDomain(record)).Error; err != nil {
			return fmt.Errorf("insert settlement %s: %w", record.SettlementNumber, err)
		}
		return nil
	})
}

func settleOpenItem(tx *gorm.DB, tenantID uuid.UUID, line settlement.SettlementLine) error {
	var row models.OpenItemModel
	if err := tx.Where("tenant_id = ? AND id = ?", tenantID, line.OpenItemID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: open item %s", shared.ErrNotFound, line.DocumentNo)
		}
		return err
	}

	item := row.ToDomain()
	if err := item.Settle(line.Cleared()); err != nil {
		return fmt.Errorf("document %s: %w", line.DocumentNo, err)
	}

	result := tx.Model(&models.OpenItemModel{}).
		Where("id = ? AND version = ?", item.ID, item.Version-1).
		Updates(map[string]any{
			"balance":    item.Balance,
			"version":    item.Version,
			"updated_at": item.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: open item %s changed during save", shared.ErrConcurrencyConflict, line.DocumentNo)
	}
	return nil
}

// UpdateMethodFlags stores the post-dated flags of every method row. The
// record version must be one ahead of the stored version.
func (r *GormSettlementRepository) UpdateMethodFlags(ctx context.Context, record *settlement.SettlementRecord) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SettlementRecordModel{}).
			Where("tenant_id = ? AND id = ? AND version = ?", record.TenantID, record.ID, record.Version-1).
			Updates(map[string]any{
				"version":    record.Version,
				"updated_at": record.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		for i, m := range record.Methods {
			if err := tx.Model(&models.SettlementMethodModel{}).
				Where("settlement_id = ? AND line_no = ?", record.ID, i+1).
				Updates(map[string]any{
					"post_dated":  m.PostDated,
					"cheque_date": m.ChequeDate,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindByIDForTenant loads a settlement with its method rows and lines
func (r *GormSettlementRepository) FindByIDForTenant(ctx context.Context, tenantID, id uuid.UUID) (*settlement.SettlementRecord, error) {
	var model models.SettlementRecordModel
	if err := r.db.WithContext(ctx).
		Preload("Methods", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_no ASC") }).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
