package persistence

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	testTenantID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testCustomerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

// newSQLiteDatabase opens a migrated in-memory database
func newSQLiteDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newMockGormDB wires gorm's postgres dialector to sqlmock
func newMockGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return gormDB, mock, mockDB
}

func invoice(t *testing.T, no string, day int, amount string) *settlement.OpenItem {
	t.Helper()
	item, err := settlement.NewOpenItem(
		testTenantID,
		settlement.LedgerReceivable,
		testCustomerID,
		settlement.DocumentKindInvoice,
		no,
		time.Date(2024, time.January, day, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString(amount),
	)
	require.NoError(t, err)
	return item
}
