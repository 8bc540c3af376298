package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormOpenItemRepository_UpsertAndFind(t *testing.T) {
	db := newSQLiteDatabase(t)
	repo := NewGormOpenItemRepository(db.DB)
	ctx := context.Background()

	late := invoice(t, "INV-002", 20, "80.00")
	early := invoice(t, "INV-001", 5, "100.00")
	settled := invoice(t, "INV-003", 1, "10.00")
	require.NoError(t, settled.SetBalance(decimal.Zero))
	require.NoError(t, repo.Upsert(ctx, []*settlement.OpenItem{late, early, settled}))

	items, err := repo.FindOpenItems(ctx, testTenantID, settlement.LedgerReceivable, testCustomerID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "INV-001", items[0].DocumentNo)
	assert.Equal(t, "INV-002", items[1].DocumentNo)
	assert.True(t, items[0].Balance.Equal(decimal.RequireFromString("100")))

	t.Run("updates existing document in place", func(t *testing.T) {
		again := invoice(t, "INV-001", 5, "100.00")
		require.NoError(t, again.SetBalance(decimal.RequireFromString("40")))
		require.NoError(t, repo.Upsert(ctx, []*settlement.OpenItem{again}))

		items, err := repo.FindOpenItems(ctx, testTenantID, settlement.LedgerReceivable, testCustomerID)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, early.ID, items[0].ID)
		assert.True(t, items[0].Balance.Equal(decimal.RequireFromString("40")))
		assert.Equal(t, early.Version+1, items[0].Version)
	})

	t.Run("a save holding the pre-import version no longer matches", func(t *testing.T) {
		result := db.DB.Model(&models.OpenItemModel{}).
			Where("id = ? AND version = ?", early.ID, early.Version).
			Update("balance", decimal.RequireFromString("100"))
		require.NoError(t, result.Error)
		assert.Zero(t, result.RowsAffected)
	})

	t.Run("other ledgers and counterparties are excluded", func(t *testing.T) {
		items, err := repo.FindOpenItems(ctx, testTenantID, settlement.LedgerPayable, testCustomerID)
		require.NoError(t, err)
		assert.Empty(t, items)

		items, err = repo.FindOpenItems(ctx, testTenantID, settlement.LedgerReceivable, uuid.New())
		require.NoError(t, err)
		assert.Empty(t, items)
	})

	t.Run("empty upsert is a no-op", func(t *testing.T) {
		assert.NoError(t, repo.Upsert(ctx, nil))
	})
}

func TestGormOpenItemRepository_FindOpenItemsQuery(t *testing.T) {
	gormDB, mock, mockDB := newMockGormDB(t)
	defer mockDB.Close()
	repo := NewGormOpenItemRepository(gormDB)

	id := uuid.New()
	rows := sqlmock.NewRows([]string{
		"id", "tenant_id", "version", "ledger", "counterparty_id", "kind",
		"document_no", "document_date", "amount", "balance", "discount_amount",
	}).AddRow(
		id, testTenantID, 1, "RECEIVABLE", testCustomerID, "INVOICE",
		"INV-9", time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), "50.00", "25.00", "0",
	)
	mock.ExpectQuery(`SELECT \* FROM "open_items" WHERE \(tenant_id = \$1 AND ledger = \$2 AND counterparty_id = \$3\) AND balance > 0 ORDER BY document_date ASC, document_no ASC`).
		WillReturnRows(rows)

	items, err := repo.FindOpenItems(context.Background(), testTenantID, settlement.LedgerReceivable, testCustomerID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.Equal(t, "25", items[0].Balance.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
