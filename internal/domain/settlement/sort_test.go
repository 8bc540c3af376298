package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func documentNumbers(b *Batch) []string {
	docs := b.Documents()
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.DocumentNo
	}
	return out
}

func TestBatch_Sort(t *testing.T) {
	credit := receivable("CN-1", day(2), "50")
	credit.Kind = DocumentKindDebitNote

	newBatch := func(t *testing.T) *Batch {
		return newReceipt(t, "100",
			receivable("INV-3", day(2), "300"),
			receivable("INV-1", day(1), "100"),
			credit,
			receivable("INV-2", day(2), "100"),
		)
	}

	tests := []struct {
		name string
		key  SortKey
		dir  SortDirection
		want []string
	}{
		{"date ascending keeps load order on ties", SortKeyDate, SortAscending, []string{"INV-1", "INV-3", "CN-1", "INV-2"}},
		{"date descending keeps load order on ties", SortKeyDate, SortDescending, []string{"INV-3", "CN-1", "INV-2", "INV-1"}},
		{"document number", SortKeyDocumentNo, SortAscending, []string{"CN-1", "INV-1", "INV-2", "INV-3"}},
		{"amount ascending", SortKeyAmount, SortAscending, []string{"CN-1", "INV-1", "INV-2", "INV-3"}},
		{"amount descending", SortKeyAmount, SortDescending, []string{"INV-3", "INV-1", "INV-2", "CN-1"}},
		{"kind", SortKeyKind, SortAscending, []string{"CN-1", "INV-3", "INV-1", "INV-2"}},
		{"empty direction means ascending", SortKeyAmount, "", []string{"CN-1", "INV-1", "INV-2", "INV-3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBatch(t)
			require.NoError(t, b.Sort(tt.key, tt.dir))
			assert.Equal(t, tt.want, documentNumbers(b))
		})
	}

	t.Run("sorting twice is stable", func(t *testing.T) {
		b := newBatch(t)
		require.NoError(t, b.Sort(SortKeyAmount, SortDescending))
		require.NoError(t, b.Sort(SortKeyDate, SortAscending))
		assert.Equal(t, []string{"INV-1", "INV-3", "CN-1", "INV-2"}, documentNumbers(b))
	})

	t.Run("sort survives a counterparty change", func(t *testing.T) {
		b := newBatch(t)
		require.NoError(t, b.Sort(SortKeyDocumentNo, SortDescending))

		require.NoError(t, b.LoadDocuments(testCustomerID, []OpenItem{
			receivable("A-1", day(1), "10"),
			receivable("B-1", day(1), "10"),
		}))

		assert.Equal(t, []string{"B-1", "A-1"}, documentNumbers(b))
	})

	t.Run("rejects unknown key", func(t *testing.T) {
		b := newBatch(t)
		assert.ErrorIs(t, b.Sort("COLOUR", SortAscending), ErrInvalidSort)
		assert.ErrorIs(t, b.Sort(SortKeyDate, "SIDEWAYS"), ErrInvalidSort)
	})
}
