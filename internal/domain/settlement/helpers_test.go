package settlement

import (
	"testing"
	"time"

	"github.com/erp/settlement/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var (
	testTenantID   = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	testCustomerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	testOtherID    = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(n int) time.Time {
	return time.Date(2024, time.January, n, 0, 0, 0, 0, time.UTC)
}

func receivable(no string, date time.Time, balance string) OpenItem {
	return OpenItem{
		TenantAggregateRoot: shared.NewTenantAggregateRoot(testTenantID),
		Ledger:              LedgerReceivable,
		CounterpartyID:      testCustomerID,
		Kind:                DocumentKindInvoice,
		DocumentNo:          no,
		DocumentDate:        date,
		Amount:              dec(balance),
		Balance:             dec(balance),
		DiscountAmount:      decimal.Zero,
	}
}

func cash(amount string) MethodLine {
	return MethodLine{Method: PaymentMethodCash, Amount: dec(amount), Deduction: decimal.Zero}
}

// newReceipt builds a NEW receipt batch with one cash line and the given documents
func newReceipt(t *testing.T, total string, items ...OpenItem) *Batch {
	t.Helper()
	b, err := NewBatch(testTenantID, SettlementTypeReceipt, WithSettlementDate(day(31)))
	require.NoError(t, err)
	require.NoError(t, b.SetMethods([]MethodLine{cash(total)}))
	require.NoError(t, b.LoadDocuments(testCustomerID, items))
	return b
}

func requireConsistent(t *testing.T, b *Batch) {
	t.Helper()
	require.NoError(t, b.CheckInvariants())
	require.True(t, b.Remaining().Equal(b.Total().Sub(b.AppliedTotal())))
	for _, d := range b.Documents() {
		require.Equal(t, d.AppliedAmount.IsPositive(), d.Selected(), d.DocumentNo)
		require.False(t, d.Outstanding().IsNegative(), d.DocumentNo)
	}
}

func applied(t *testing.T, b *Batch, documentNo string) decimal.Decimal {
	t.Helper()
	d, err := b.Document(documentNo)
	require.NoError(t, err)
	return d.AppliedAmount
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

func appliedAmounts(b *Batch) map[string]string {
	out := make(map[string]string)
	for _, d := range b.Documents() {
		out[d.DocumentNo] = d.AppliedAmount.StringFixed(2)
	}
	return out
}
