package settlement

import (
	"sort"
	"strings"
)

// Sort reorders the document rows. Rows that compare equal keep their load order.
func (b *Batch) Sort(key SortKey, direction SortDirection) error {
	if direction == "" {
		direction = SortAscending
	}
	if !key.IsValid() || !direction.IsValid() {
		return ErrInvalidSort
	}
	b.sortKey = key
	b.sortDirection = direction
	b.applySort()
	return nil
}

func (b *Batch) applySort() {
	key, desc := b.sortKey, b.sortDirection == SortDescending
	sort.SliceStable(b.documents, func(i, j int) bool {
		c := compareDocuments(b.documents[i], b.documents[j], key)
		if c != 0 {
			if desc {
				return c > 0
			}
			return c < 0
		}
		return b.documents[i].loadOrder < b.documents[j].loadOrder
	})
}

func compareDocuments(a, b *OutstandingDocument, key SortKey) int {
	switch key {
	case SortKeyDate:
		return a.DocumentDate.Compare(b.DocumentDate)
	case SortKeyDocumentNo:
		return strings.Compare(a.DocumentNo, b.DocumentNo)
	case SortKeyAmount:
		return a.OriginalAmount.Cmp(b.OriginalAmount)
	case SortKeyKind:
		return strings.Compare(string(a.Kind), string(b.Kind))
	}
	return 0
}
