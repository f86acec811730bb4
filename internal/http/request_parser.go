package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

const dayFormat = "2006-01-02"

// invoiceRequest is the create/update payload. Items are raw objects so
// legacy field spellings (qty, price_per_um, text, ...) keep working via
// the core normalization adapter.
type invoiceRequest struct {
	CustomerID      int64            `json:"customer_id"`
	Number          string           `json:"number"`
	Currency        string           `json:"currency"`
	DiscountPercent json.Number      `json:"discount_percent"`
	Status          string           `json:"status"`
	IssueDate       string           `json:"issue_date"`
	DueDate         string           `json:"due_date"`
	Items           []map[string]any `json:"items"`
}

type fromEntriesRequest struct {
	CustomerID int64       `json:"customer_id"`
	Number     string      `json:"number"`
	Currency   string      `json:"currency"`
	EntryIDs   []int64     `json:"entry_ids"`
	Discount   json.Number `json:"discount_percent"`
	VATRate    json.Number `json:"vat_rate"`
	IssueDate  string      `json:"issue_date"`
	DueDate    string      `json:"due_date"`
}

type timeEntryRequest struct {
	ProjectID       int64       `json:"project_id"`
	Note            string      `json:"note"`
	Day             string      `json:"day"`
	DurationMinutes int64       `json:"duration_minutes"`
	HourlyRate      json.Number `json:"hourly_rate"`
}

type entrySelectionRequest struct {
	EntryIDs []int64 `json:"entry_ids"`
}

type startTimerRequest struct {
	ProjectID  int64       `json:"project_id"`
	Note       string      `json:"note"`
	HourlyRate json.Number `json:"hourly_rate"`
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

func (req invoiceRequest) toDomain() (core.Invoice, error) {
	items := make([]core.LineItem, 0, len(req.Items))
	for i, raw := range req.Items {
		it, err := core.NormalizeItemRecord(raw)
		if err != nil {
			return core.Invoice{}, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, it)
	}

	discount, err := parseNumber(req.DiscountPercent, "discount_percent")
	if err != nil {
		return core.Invoice{}, err
	}
	issue, err := parseDay(req.IssueDate, "issue_date")
	if err != nil {
		return core.Invoice{}, err
	}
	due, err := parseDay(req.DueDate, "due_date")
	if err != nil {
		return core.Invoice{}, err
	}

	return core.Invoice{
		CustomerID:      req.CustomerID,
		Number:          req.Number,
		Currency:        req.Currency,
		DiscountPercent: discount,
		Status:          core.StoredStatus(req.Status),
		IssueDate:       issue,
		DueDate:         due,
		Items:           items,
	}, nil
}

func parseNumber(n json.Number, field string) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q", field, n)
	}
	return d, nil
}

func parseOptionalRate(n json.Number) (*decimal.Decimal, error) {
	if n == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil, fmt.Errorf("invalid hourly_rate %q", n)
	}
	return &d, nil
}

func parseDay(s, field string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse(dayFormat, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid %s %q: want YYYY-MM-DD", field, s)
	}
	return core.Date{Time: t}, nil
}
