package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/log"
	"fatture/internal/rates/memory"
	"fatture/internal/services"
	"fatture/internal/storage"
)

func newTestServer(t *testing.T, now time.Time) *Server {
	t.Helper()

	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	src := memory.New()
	src.Set("CHF", "EUR", decimal.RequireFromString("0.92"))

	clock := func() time.Time { return now }
	invoices := services.NewInvoiceService(repo, src, nil, "CHF", clock)
	entries := services.NewTimeEntryService(repo, clock)
	logger := log.New(log.Config{Level: slog.LevelError, Component: "test"})

	return NewServer("0", invoices, entries, logger)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), "body: %s", rec.Body.String())
}

func TestCreateInvoiceComputesTotals(t *testing.T) {
	srv := newTestServer(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": 1,
		"number":      "2026-001",
		"currency":    "CHF",
		"issue_date":  "2026-03-10",
		"due_date":    "2026-04-09",
		"items": []map[string]any{
			{"description": "Consulting", "quantity": 10, "um": 1.5, "price": 20, "vat": 8},
			{"description": "Licenze", "qty": 1, "price_per_um": 15, "vat_rate": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp invoiceResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "315.00", resp.Subtotal)
	assert.Equal(t, "24.30", resp.VATAmount)
	assert.Equal(t, "339.30", resp.Total)
	assert.Equal(t, "draft", resp.Status)
	assert.Equal(t, "draft", resp.ResolvedStatus)
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, "300.00", resp.Items[0].Total)
}

func TestCreateInvoiceCrossCurrency(t *testing.T) {
	srv := newTestServer(t, time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": 1,
		"number":      "2026-002",
		"currency":    "EUR",
		"items": []map[string]any{
			{"description": "Consulting", "quantity": 10, "um": 1.5, "price": 20, "vat": 8},
			{"description": "Licenze", "qty": 1, "price": 15, "vat": 2},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp invoiceResponse
	decodeBody(t, rec, &resp)
	require.NotNil(t, resp.ExchangeRate)
	require.NotNil(t, resp.ConvertedTotal)
	assert.Equal(t, "0.92", *resp.ExchangeRate)
	assert.Equal(t, "312.16", *resp.ConvertedTotal)
}

func TestCreateInvoiceFieldValidation(t *testing.T) {
	srv := newTestServer(t, time.Now())
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": 1,
		"number":      "2026-003",
		"currency":    "CHF",
		"items": []map[string]any{
			{"description": "ok", "quantity": 1, "price": 10, "vat": 8},
			{"description": "bad", "quantity": -2, "price": 10, "vat": 8},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var resp errorResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "quantity", resp.Field)
	require.NotNil(t, resp.ItemIndex)
	assert.Equal(t, 1, *resp.ItemIndex)
}

func TestInvoiceLifecycleRoutes(t *testing.T) {
	srv := newTestServer(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/invoices", map[string]any{
		"customer_id": 7,
		"number":      "2026-010",
		"currency":    "CHF",
		"issue_date":  "2026-03-01",
		"due_date":    "2026-03-31",
		"items": []map[string]any{
			{"description": "Lavoro", "quantity": 1, "price": 100, "vat": 8.1},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created invoiceResponse
	decodeBody(t, rec, &created)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/invoices/%d/issue", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var issued invoiceResponse
	decodeBody(t, rec, &issued)
	assert.Equal(t, "issued", issued.Status)
	// Due date already past at the fixed clock, so the view is overdue.
	assert.Equal(t, "overdue", issued.ResolvedStatus)

	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/invoices/%d/pay", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var paid invoiceResponse
	decodeBody(t, rec, &paid)
	assert.Equal(t, "paid", paid.Status)
	assert.Equal(t, "paid", paid.ResolvedStatus)
	assert.Equal(t, "2026-05-01", paid.PaidDate)
}

func TestGetInvoiceNotFound(t *testing.T) {
	srv := newTestServer(t, time.Now())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/invoices/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvoiceFromEntriesFlow(t *testing.T) {
	srv := newTestServer(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	h := srv.Handler()

	var ids []int64
	for _, e := range []map[string]any{
		{"project_id": 3, "note": "API", "day": "2026-05-20", "duration_minutes": 90, "hourly_rate": 120},
		{"project_id": 3, "note": "Review", "day": "2026-05-21", "duration_minutes": 30, "hourly_rate": 120},
	} {
		rec := doJSON(t, h, http.MethodPost, "/api/time-entries", e)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var out map[string]int64
		decodeBody(t, rec, &out)
		ids = append(ids, out["id"])
	}

	rec := doJSON(t, h, http.MethodPost, "/api/time-entries/summary", map[string]any{"entry_ids": ids})
	require.Equal(t, http.StatusOK, rec.Code)
	var sum summaryResponse
	decodeBody(t, rec, &sum)
	assert.Equal(t, int64(120), sum.TotalMinutes)
	assert.Equal(t, "240.00", sum.TotalAmount)

	rec = doJSON(t, h, http.MethodPost, "/api/invoices/from-entries", map[string]any{
		"customer_id": 3,
		"number":      "2026-020",
		"currency":    "CHF",
		"entry_ids":   ids,
		"vat_rate":    8.1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var inv invoiceResponse
	decodeBody(t, rec, &inv)
	assert.Len(t, inv.Items, 2)

	// Invoiced entries leave the unbilled pool.
	rec = doJSON(t, h, http.MethodGet, "/api/time-entries/unbilled?project_id=3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var unbilled []timeEntryResponse
	decodeBody(t, rec, &unbilled)
	assert.Empty(t, unbilled)

	// And can no longer be deleted.
	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/time-entries/%d", ids[0]), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestInvoiceFromEntriesEmptySelection(t *testing.T) {
	srv := newTestServer(t, time.Now())
	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/invoices/from-entries", map[string]any{
		"customer_id": 1,
		"number":      "2026-021",
		"currency":    "CHF",
		"entry_ids":   []int64{},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTimerRoutes(t *testing.T) {
	now := time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC)
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "timer.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	current := now
	clock := func() time.Time { return current }
	invoices := services.NewInvoiceService(repo, nil, nil, "CHF", clock)
	entries := services.NewTimeEntryService(repo, clock)
	logger := log.New(log.Config{Level: slog.LevelError, Component: "test"})
	h := NewServer("0", invoices, entries, logger).Handler()

	rec := doJSON(t, h, http.MethodPost, "/api/timers/start", map[string]any{
		"project_id":  5,
		"note":        "debug",
		"hourly_rate": 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var started map[string]int64
	decodeBody(t, rec, &started)

	current = now.Add(25*time.Minute + 10*time.Second)
	rec = doJSON(t, h, http.MethodPost, fmt.Sprintf("/api/timers/%d/stop", started["id"]), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stopped map[string]int64
	decodeBody(t, rec, &stopped)
	assert.Equal(t, int64(26), stopped["duration_minutes"])
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, time.Now())
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
