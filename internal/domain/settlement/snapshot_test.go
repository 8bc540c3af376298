package settlement

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotRoundTrip(t *testing.T) {
	item := receivable("INV-2", day(2), "800")
	item.DiscountAmount = dec("40")
	item.DiscountDueDate = ptrTime(day(15))
	b := newReceipt(t, "700", receivable("INV-1", day(1), "500"), item)
	require.NoError(t, b.SetDiscount("INV-2", true, "40"))
	require.NoError(t, b.Sort(SortKeyAmount, SortDescending))
	b.AutoAllocate(ScopeAll)

	raw, err := json.Marshal(b.Snapshot())
	require.NoError(t, err)
	var s BatchSnapshot
	require.NoError(t, json.Unmarshal(raw, &s))

	restored, err := RestoreBatch(s)
	require.NoError(t, err)

	assert.Equal(t, b.ID(), restored.ID())
	assert.Equal(t, documentNumbers(b), documentNumbers(restored))
	assert.Equal(t, appliedAmounts(b), appliedAmounts(restored))
	assert.True(t, restored.Remaining().Equal(b.Remaining()))
	key, dir := restored.Sorting()
	assert.Equal(t, SortKeyAmount, key)
	assert.Equal(t, SortDescending, dir)

	// load order survives so later sorts still break ties the same way
	require.NoError(t, restored.Sort(SortKeyDate, SortAscending))
	assert.Equal(t, []string{"INV-1", "INV-2"}, documentNumbers(restored))
}

func TestRestoreBatch_IsIndependent(t *testing.T) {
	b := newReceipt(t, "700", receivable("INV-1", day(1), "500"))
	s := b.Snapshot()

	restored, err := RestoreBatch(s)
	require.NoError(t, err)
	require.NoError(t, restored.ToggleSelection("INV-1", true))

	assert.True(t, applied(t, b, "INV-1").IsZero())
	assert.True(t, s.Documents[0].AppliedAmount.IsZero())
}

func TestRestoreBatch_RejectsCorruptSnapshots(t *testing.T) {
	b := newReceipt(t, "100", receivable("INV-1", day(1), "500"))

	s := b.Snapshot()
	s.Documents[0].AppliedAmount = dec("400")
	_, err := RestoreBatch(s)
	assert.Error(t, err, "applied above total")

	s = b.Snapshot()
	s.Mode = "BROKEN"
	_, err = RestoreBatch(s)
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestDraft(t *testing.T) {
	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	b := newReceipt(t, "100", receivable("INV-1", day(1), "500"))

	d := NewDraft(b, 30*time.Minute, now)

	assert.Equal(t, b.ID(), d.ID)
	assert.Equal(t, testTenantID, d.TenantID)
	assert.False(t, d.Expired(now.Add(29*time.Minute)))
	assert.True(t, d.Expired(now.Add(30*time.Minute)))

	restored, err := d.Restore()
	require.NoError(t, err)
	assert.Equal(t, documentNumbers(b), documentNumbers(restored))
}
