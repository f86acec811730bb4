package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fatture.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testInvoice() core.Invoice {
	rate := d("0.92")
	converted := d("312.16")
	return core.Invoice{
		CustomerID:      3,
		Number:          "2026-0007",
		DiscountPercent: d("10"),
		Currency:        "USD",
		Subtotal:        d("315.00"),
		VATAmount:       d("24.30"),
		Total:           d("339.30"),
		AvgVATRate:      d("7.71"),
		ExchangeRate:    &rate,
		ConvertedTotal:  &converted,
		Status:          core.StatusIssued,
		IssueDate:       core.NewDate(2026, 2, 1),
		DueDate:         core.NewDate(2026, 3, 1),
		Items: []core.LineItem{
			{Description: "development", Quantity: d("3"), UnitMultiplier: d("1"), UnitPrice: d("100"), VATRate: d("8.1")},
			{Description: "hosting", Quantity: d("1"), UnitMultiplier: d("1"), UnitPrice: d("50"), VATRate: d("0")},
		},
	}
}

func TestInvoiceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateInvoice(ctx, testInvoice())
	require.NoError(t, err)
	require.NotZero(t, id)

	got, err := repo.GetInvoice(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, "2026-0007", got.Number)
	assert.Equal(t, "USD", got.Currency)
	assert.True(t, got.Subtotal.Equal(d("315")), "subtotal %s", got.Subtotal)
	assert.True(t, got.VATAmount.Equal(d("24.30")))
	assert.True(t, got.Total.Equal(d("339.30")))
	require.NotNil(t, got.ExchangeRate)
	assert.True(t, got.ExchangeRate.Equal(d("0.92")))
	require.NotNil(t, got.ConvertedTotal)
	assert.True(t, got.ConvertedTotal.Equal(d("312.16")))
	assert.Equal(t, core.StatusIssued, got.Status)
	assert.Equal(t, core.NewDate(2026, 3, 1).Format("2006-01-02"), got.DueDate.Format("2006-01-02"))
	assert.True(t, got.PaidDate.IsEmpty())

	require.Len(t, got.Items, 2)
	assert.Equal(t, "development", got.Items[0].Description, "item order preserved")
	assert.Equal(t, "hosting", got.Items[1].Description)
	assert.True(t, got.Items[0].Quantity.Equal(d("3")))
}

func TestUpdateInvoiceReplacesItems(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	inv := testInvoice()
	id, err := repo.CreateInvoice(ctx, inv)
	require.NoError(t, err)

	inv.ID = id
	inv.Items = []core.LineItem{
		{Description: "revised", Quantity: d("2"), UnitMultiplier: d("1"), UnitPrice: d("80"), VATRate: d("8.1")},
	}
	inv.ExchangeRate = nil
	inv.ConvertedTotal = nil
	require.NoError(t, repo.UpdateInvoice(ctx, inv))

	got, err := repo.GetInvoice(ctx, id)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "revised", got.Items[0].Description)
	assert.Nil(t, got.ExchangeRate, "converted fields cleared")
	assert.Nil(t, got.ConvertedTotal)
}

func TestUpdateInvoiceNotFound(t *testing.T) {
	repo := newTestRepo(t)
	inv := testInvoice()
	inv.ID = 999
	assert.ErrorIs(t, repo.UpdateInvoice(context.Background(), inv), ErrNotFound)
}

func TestSetInvoiceStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.CreateInvoice(ctx, testInvoice())
	require.NoError(t, err)

	require.NoError(t, repo.SetInvoiceStatus(ctx, id, core.StatusPaid, core.NewDate(2026, 2, 20)))

	got, err := repo.GetInvoice(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusPaid, got.Status)
	assert.Equal(t, "2026-02-20", got.PaidDate.Format("2006-01-02"))

	assert.ErrorIs(t, repo.SetInvoiceStatus(ctx, 999, core.StatusPaid, core.Date{}), ErrNotFound)
}

func TestMarkEntriesInvoicedIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rate := d("120")

	e1, err := repo.CreateTimeEntry(ctx, core.TimeEntry{
		ProjectID: 1, Day: core.NewDate(2026, 2, 10), DurationMinutes: 90,
		HourlyRate: &rate, Status: core.BillingUnbilled,
	}, nil)
	require.NoError(t, err)
	e2, err := repo.CreateTimeEntry(ctx, core.TimeEntry{
		ProjectID: 1, Day: core.NewDate(2026, 2, 11), DurationMinutes: 30,
		HourlyRate: &rate, Status: core.BillingUnbilled,
	}, nil)
	require.NoError(t, err)

	invID, err := repo.CreateInvoice(ctx, testInvoice())
	require.NoError(t, err)

	require.NoError(t, repo.MarkEntriesInvoiced(ctx, invID, []int64{e1, e2}))
	// Retry must be a no-op, not a failure.
	require.NoError(t, repo.MarkEntriesInvoiced(ctx, invID, []int64{e1, e2}))

	entries, err := repo.GetTimeEntries(ctx, []int64{e1, e2})
	require.NoError(t, err)
	for _, e := range entries {
		assert.Equal(t, core.BillingInvoiced, e.Status)
		require.NotNil(t, e.InvoiceID)
		assert.Equal(t, invID, *e.InvoiceID)
	}

	// Rebinding to another invoice fails the batch.
	otherID, err := repo.CreateInvoice(ctx, testInvoice())
	require.NoError(t, err)
	assert.ErrorIs(t, repo.MarkEntriesInvoiced(ctx, otherID, []int64{e1}), ErrEntryLocked)
}

func TestDeleteTimeEntryOnlyUnbilled(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rate := d("100")

	id, err := repo.CreateTimeEntry(ctx, core.TimeEntry{
		ProjectID: 1, Day: core.NewDate(2026, 2, 10), DurationMinutes: 60,
		HourlyRate: &rate, Status: core.BillingUnbilled,
	}, nil)
	require.NoError(t, err)

	invID, err := repo.CreateInvoice(ctx, testInvoice())
	require.NoError(t, err)
	require.NoError(t, repo.MarkEntriesInvoiced(ctx, invID, []int64{id}))

	assert.ErrorIs(t, repo.DeleteTimeEntry(ctx, id), ErrEntryLocked)

	free, err := repo.CreateTimeEntry(ctx, core.TimeEntry{
		ProjectID: 1, Day: core.NewDate(2026, 2, 12), DurationMinutes: 15,
		Status: core.BillingUnbilled,
	}, nil)
	require.NoError(t, err)
	assert.NoError(t, repo.DeleteTimeEntry(ctx, free))
}

func TestGetUnreconciledEntries(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	rate := d("120")

	entryID, err := repo.CreateTimeEntry(ctx, core.TimeEntry{
		ProjectID: 1, Day: core.NewDate(2026, 2, 10), DurationMinutes: 90,
		HourlyRate: &rate, Status: core.BillingUnbilled,
	}, nil)
	require.NoError(t, err)

	inv := testInvoice()
	inv.Items = inv.Items[:1]
	invID, err := repo.CreateInvoiceWithEntryRefs(ctx, inv, []int64{entryID})
	require.NoError(t, err)

	// Entry flip never happened: the join finds it.
	pending, err := repo.GetUnreconciledEntries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entryID, pending[0].EntryID)
	assert.Equal(t, invID, pending[0].InvoiceID)

	require.NoError(t, repo.MarkEntriesInvoiced(ctx, invID, []int64{entryID}))

	pending, err = repo.GetUnreconciledEntries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
