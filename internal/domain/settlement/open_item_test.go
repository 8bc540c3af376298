package settlement

import (
	"testing"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenItem(t *testing.T) {
	t.Run("valid item opens with full balance", func(t *testing.T) {
		item, err := NewOpenItem(testTenantID, LedgerReceivable, testCustomerID, DocumentKindInvoice, " INV-1 ", day(1), dec("100.456"))
		require.NoError(t, err)

		assert.Equal(t, "INV-1", item.DocumentNo)
		assert.True(t, item.Amount.Equal(dec("100.46")))
		assert.True(t, item.Balance.Equal(item.Amount))
		assert.True(t, item.IsOpen())
		assert.Equal(t, 1, item.Version)
	})

	tests := []struct {
		name   string
		ledger Ledger
		cp     uuid.UUID
		kind   DocumentKind
		no     string
		amount string
	}{
		{"bad ledger", "GENERAL", testCustomerID, DocumentKindInvoice, "INV-1", "1"},
		{"no counterparty", LedgerReceivable, uuid.Nil, DocumentKindInvoice, "INV-1", "1"},
		{"bad kind", LedgerReceivable, testCustomerID, "ORDER", "INV-1", "1"},
		{"blank number", LedgerReceivable, testCustomerID, DocumentKindInvoice, "  ", "1"},
		{"negative amount", LedgerReceivable, testCustomerID, DocumentKindInvoice, "INV-1", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOpenItem(testTenantID, tt.ledger, tt.cp, tt.kind, tt.no, day(1), dec(tt.amount))
			assert.Error(t, err)
		})
	}
}

func TestOpenItem_Settle(t *testing.T) {
	item, err := NewOpenItem(testTenantID, LedgerPayable, testCustomerID, DocumentKindInvoice, "BILL-1", day(1), dec("300"))
	require.NoError(t, err)

	require.NoError(t, item.Settle(dec("120")))
	assert.True(t, item.Balance.Equal(dec("180")))
	assert.Equal(t, 2, item.Version)

	assert.ErrorIs(t, item.Settle(dec("500")), shared.ErrInsufficientBalance)
	assert.Error(t, item.Settle(dec("-1")))

	require.NoError(t, item.Settle(dec("180")))
	assert.False(t, item.IsOpen())
}

func TestOpenItem_BalanceAndDiscount(t *testing.T) {
	item, err := NewOpenItem(testTenantID, LedgerReceivable, testCustomerID, DocumentKindInvoice, "INV-1", day(1), dec("300"))
	require.NoError(t, err)

	require.NoError(t, item.SetBalance(dec("120")))
	assert.Error(t, item.SetBalance(dec("301")))

	require.NoError(t, item.OfferDiscount(dec("6"), ptrTime(day(10))))
	assert.True(t, item.DiscountAmount.Equal(dec("6")))
	assert.Error(t, item.OfferDiscount(dec("400"), nil))
}
