package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StoredStatus is the invoice lifecycle status as persisted. "overdue" is
// never stored; it is derived at read time (see ResolveStatus).
type StoredStatus string

const (
	StatusDraft     StoredStatus = "draft"
	StatusIssued    StoredStatus = "issued"
	StatusPaid      StoredStatus = "paid"
	StatusCancelled StoredStatus = "cancelled"
)

// Valid reports whether s is one of the known stored statuses.
func (s StoredStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// ResolvedStatus is the status shown to users. It is a superset of
// StoredStatus: an issued invoice past its due date resolves to overdue.
type ResolvedStatus string

const (
	ResolvedDraft     ResolvedStatus = "draft"
	ResolvedIssued    ResolvedStatus = "issued"
	ResolvedOverdue   ResolvedStatus = "overdue"
	ResolvedPaid      ResolvedStatus = "paid"
	ResolvedCancelled ResolvedStatus = "cancelled"
)

// BillingStatus tracks whether a time entry has been folded into an invoice.
type BillingStatus string

const (
	BillingUnbilled BillingStatus = "unbilled"
	BillingInvoiced BillingStatus = "invoiced"
	BillingPaid     BillingStatus = "paid"
)

type (
	Date struct {
		time.Time
	}

	// LineItem is one billable row on an invoice. Items are ephemeral:
	// built from user input or from a TimeEntry, then folded into an
	// Invoice. Order is display-relevant only.
	LineItem struct {
		Description    string
		Quantity       decimal.Decimal
		UnitMultiplier decimal.Decimal // "um", defaults to 1
		UnitPrice      decimal.Decimal
		VATRate        decimal.Decimal // percentage, e.g. 8.1
	}

	// Invoice holds the persisted invoice document. Subtotal, VATAmount,
	// Total, AvgVATRate, ExchangeRate and ConvertedTotal are derived and
	// only ever written by the invoice service.
	Invoice struct {
		ID              int64
		CustomerID      int64
		Number          string
		Items           []LineItem
		DiscountPercent decimal.Decimal // 0-100, applied pre-VAT
		Currency        string
		Subtotal        decimal.Decimal
		VATAmount       decimal.Decimal
		Total           decimal.Decimal
		AvgVATRate      decimal.Decimal
		ExchangeRate    *decimal.Decimal // set only when Currency != account currency
		ConvertedTotal  *decimal.Decimal // Total in the account currency
		Status          StoredStatus
		IssueDate       Date
		DueDate         Date // optional, zero when unset
		PaidDate        Date // optional, set by MarkPaid
	}

	// TimeEntry is a tracked span of work. A nil HourlyRate means the
	// entry is not billable. Once invoiced it carries the invoice id and
	// must never be deleted.
	TimeEntry struct {
		ID              int64
		ProjectID       int64
		Note            string
		Day             Date
		DurationMinutes int64
		HourlyRate      *decimal.Decimal
		Status          BillingStatus
		InvoiceID       *int64
	}

	// RateQuote is an exchange rate obtained from an external provider,
	// immutable once fetched for a given invoice issue date.
	RateQuote struct {
		From string
		To   string
		Rate decimal.Decimal
		AsOf Date
	}
)

// NewDate creates a Date at midnight UTC.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day, preserving location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, t.Location())}
}

// IsEmpty returns true if the date is zero (optional dates).
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// Billable reports whether the entry can be folded into an invoice:
// it has an hourly rate and has not been invoiced yet.
func (e TimeEntry) Billable() bool {
	return e.HourlyRate != nil && e.Status == BillingUnbilled
}

// Validate checks a single line item with the same predicate used at
// invoice creation and invoice edit time. The index is only used to build
// field-level errors the caller can present contextually.
func (it LineItem) Validate(index int) error {
	if strings.TrimSpace(it.Description) == "" {
		return &ItemValidationError{Index: index, Field: "description", Reason: "must not be empty"}
	}
	if !it.Quantity.IsPositive() {
		return &ItemValidationError{Index: index, Field: "quantity", Reason: "must be positive"}
	}
	if !it.UnitPrice.IsPositive() {
		return &ItemValidationError{Index: index, Field: "unit_price", Reason: "must be positive"}
	}
	if it.UnitMultiplier.IsNegative() {
		return &ItemValidationError{Index: index, Field: "um", Reason: "must not be negative"}
	}
	if it.VATRate.IsNegative() {
		return &ItemValidationError{Index: index, Field: "vat_rate", Reason: "must not be negative"}
	}
	return nil
}

// ValidateItems enforces "at least one valid item" and validates every
// item, returning the first field-level failure.
func ValidateItems(items []LineItem) error {
	if len(items) == 0 {
		return &ItemValidationError{Index: -1, Field: "items", Reason: "at least one line item is required"}
	}
	for i, it := range items {
		if err := it.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDiscount checks the invoice-level discount percentage.
func ValidateDiscount(pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
		return &ItemValidationError{Index: -1, Field: "discount_percent", Reason: "must be between 0 and 100"}
	}
	return nil
}
