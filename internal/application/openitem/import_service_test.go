package openitem

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/settlement"
	"github.com/erp/settlement/internal/domain/shared"
	fileimport "github.com/erp/settlement/internal/infrastructure/import"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	testTenantID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testCustomerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
)

// MockOpenItemRepository is a mock implementation of settlement.OpenItemRepository
type MockOpenItemRepository struct {
	mock.Mock
}

func (m *MockOpenItemRepository) FindOpenItems(ctx context.Context, tenantID uuid.UUID, ledger settlement.Ledger, counterpartyID uuid.UUID) ([]settlement.OpenItem, error) {
	args := m.Called(ctx, tenantID, ledger, counterpartyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]settlement.OpenItem), args.Error(1)
}

func (m *MockOpenItemRepository) Upsert(ctx context.Context, items []*settlement.OpenItem) error {
	args := m.Called(ctx, items)
	return args.Error(0)
}

func day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

const header = "Ledger,Counterparty ID,Kind,Document No,Document Date,Amount,Balance,Discount Amount,Discount Due Date\n"

func csvFile(rows ...string) *strings.Reader {
	return strings.NewReader(header + strings.Join(rows, "\n") + "\n")
}

func TestImportService_Import(t *testing.T) {
	t.Run("valid rows are upserted", func(t *testing.T) {
		repo := new(MockOpenItemRepository)
		svc := NewImportService(repo)

		var captured []*settlement.OpenItem
		repo.On("Upsert", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) { captured = args.Get(1).([]*settlement.OpenItem) }).
			Return(nil).Once()

		result, err := svc.Import(context.Background(), testTenantID, "items.csv", csvFile(
			"receivable,"+testCustomerID.String()+",invoice,INV-001,2024-01-05,\"1,200.00\",,,",
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-002,2024-01-09,300,120,15,2024-02-01",
		))
		require.NoError(t, err)
		assert.Equal(t, 2, result.TotalRows)
		assert.Equal(t, 2, result.ImportedRows)
		assert.Equal(t, 0, result.ErrorRows)

		require.Len(t, captured, 2)
		assert.Equal(t, settlement.LedgerReceivable, captured[0].Ledger)
		assert.Equal(t, testTenantID, captured[0].TenantID)
		assert.True(t, captured[0].Balance.Equal(decimal.RequireFromString("1200")))
		assert.True(t, captured[1].Balance.Equal(decimal.RequireFromString("120")))
		assert.True(t, captured[1].DiscountAmount.Equal(decimal.RequireFromString("15")))
		require.NotNil(t, captured[1].DiscountDueDate)
		repo.AssertExpectations(t)
	})

	t.Run("invalid rows are reported and skipped", func(t *testing.T) {
		repo := new(MockOpenItemRepository)
		svc := NewImportService(repo)
		repo.On("Upsert", mock.Anything, mock.MatchedBy(func(items []*settlement.OpenItem) bool {
			return len(items) == 1 && items[0].DocumentNo == "INV-001"
		})).Return(nil).Once()

		result, err := svc.Import(context.Background(), testTenantID, "items.csv", csvFile(
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-001,2024-01-05,100,,,",
			"RECEIVABLE,not-a-uuid,INVOICE,INV-002,2024-01-05,100,,,",
			"SIDEWAYS,"+testCustomerID.String()+",INVOICE,INV-003,2024-01-05,100,,,",
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-004,2024-01-05,100,150,,",
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-001,2024-01-06,50,,,",
		))
		require.NoError(t, err)
		assert.Equal(t, 5, result.TotalRows)
		assert.Equal(t, 1, result.ImportedRows)
		assert.Equal(t, 4, result.ErrorRows)

		codes := make(map[int]string)
		for _, e := range result.Errors {
			codes[e.Row] = e.Code
		}
		assert.Equal(t, fileimport.ErrCodeImportInvalidType, codes[3])
		assert.Equal(t, fileimport.ErrCodeImportInvalidValue, codes[4])
		assert.Equal(t, fileimport.ErrCodeImportValidation, codes[5])
		assert.Equal(t, fileimport.ErrCodeImportDuplicateInFile, codes[6])
	})

	t.Run("all or nothing imports nothing on error", func(t *testing.T) {
		repo := new(MockOpenItemRepository)
		svc := NewImportService(repo, WithAllOrNothing(true))

		result, err := svc.Import(context.Background(), testTenantID, "items.csv", csvFile(
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-001,2024-01-05,100,,,",
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,,2024-01-05,100,,,",
		))
		require.NoError(t, err)
		assert.Equal(t, 0, result.ImportedRows)
		assert.Equal(t, 1, result.ErrorRows)
		repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	})

	t.Run("missing required column", func(t *testing.T) {
		repo := new(MockOpenItemRepository)
		svc := NewImportService(repo)

		_, err := svc.Import(context.Background(), testTenantID, "items.csv",
			strings.NewReader("Ledger,Kind,Document No\nRECEIVABLE,INVOICE,INV-1\n"))
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.ErrorIs(t, err, fileimport.ErrMissingHeader)
		assert.Contains(t, err.Error(), "counterparty_id")
	})

	t.Run("unsupported format", func(t *testing.T) {
		svc := NewImportService(new(MockOpenItemRepository))

		_, err := svc.Import(context.Background(), testTenantID, "items.pdf", strings.NewReader("x"))
		assert.ErrorIs(t, err, fileimport.ErrUnsupportedFormat)
	})

	t.Run("repository failure", func(t *testing.T) {
		repo := new(MockOpenItemRepository)
		svc := NewImportService(repo)
		repo.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))

		_, err := svc.Import(context.Background(), testTenantID, "items.csv", csvFile(
			"RECEIVABLE,"+testCustomerID.String()+",INVOICE,INV-001,2024-01-05,100,,,",
		))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db down")
	})
}

func TestImportService_List(t *testing.T) {
	repo := new(MockOpenItemRepository)
	svc := NewImportService(repo)

	item, err := settlement.NewOpenItem(testTenantID, settlement.LedgerPayable, testCustomerID,
		settlement.DocumentKindInvoice, "BILL-1", day(3), decimal.NewFromInt(90))
	require.NoError(t, err)
	repo.On("FindOpenItems", mock.Anything, testTenantID, settlement.LedgerPayable, testCustomerID).
		Return([]settlement.OpenItem{*item}, nil)

	list, err := svc.List(context.Background(), testTenantID, "payable", testCustomerID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "BILL-1", list[0].DocumentNo)
	assert.Equal(t, "PAYABLE", list[0].Ledger)

	_, err = svc.List(context.Background(), testTenantID, "general", testCustomerID)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.List(context.Background(), testTenantID, "payable", uuid.Nil)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}
