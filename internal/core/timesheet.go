package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var minutesPerHour = decimal.NewFromInt(60)

// TimesheetSummary is a human-facing preview of a batch of time entries
// before invoice creation. It assumes, without enforcing, that the batch
// shares one hourly rate; the first entry's rate is taken as
// representative.
type TimesheetSummary struct {
	TotalMinutes int64
	TotalHours   decimal.Decimal
	HourlyRate   decimal.Decimal
	TotalAmount  decimal.Decimal
	From         Date
	To           Date
}

// EntryToLineItem maps a billable time entry onto a synthetic line item:
// duration in hours (2dp) as quantity, unit multiplier 1 ("one hour = one
// unit"), the entry's hourly rate as unit price. Entries carry no VAT of
// their own, so the caller supplies the default rate. The description
// combines the entry's note, when present, with its date.
func EntryToLineItem(e TimeEntry, defaultVATRate decimal.Decimal) (LineItem, error) {
	if e.HourlyRate == nil {
		return LineItem{}, fmt.Errorf("entry %d: %w: no hourly rate", e.ID, ErrNotBillable)
	}
	if e.Status != BillingUnbilled {
		return LineItem{}, fmt.Errorf("entry %d: %w: already %s", e.ID, ErrNotBillable, e.Status)
	}
	if e.DurationMinutes < 0 {
		return LineItem{}, fmt.Errorf("entry %d: %w: negative duration", e.ID, ErrInvalidInput)
	}

	hours := decimal.NewFromInt(e.DurationMinutes).Div(minutesPerHour).Round(MinorUnits)

	desc := e.Day.Format("2006-01-02")
	if note := strings.TrimSpace(e.Note); note != "" {
		desc = note + " (" + desc + ")"
	}

	return LineItem{
		Description:    desc,
		Quantity:       hours,
		UnitMultiplier: decimal.NewFromInt(1),
		UnitPrice:      *e.HourlyRate,
		VATRate:        defaultVATRate,
	}, nil
}

// SummarizeEntries aggregates a batch for preview. Zero entries fail with
// ErrEmptyBatch: "no entries selected" is a different situation than
// "entries selected with zero duration", and a summary over nothing is
// undefined rather than zero.
func SummarizeEntries(entries []TimeEntry) (TimesheetSummary, error) {
	if len(entries) == 0 {
		return TimesheetSummary{}, ErrEmptyBatch
	}

	var totalMinutes int64
	from, to := entries[0].Day, entries[0].Day
	for _, e := range entries {
		if e.DurationMinutes < 0 {
			return TimesheetSummary{}, fmt.Errorf("entry %d: %w: negative duration", e.ID, ErrInvalidInput)
		}
		totalMinutes += e.DurationMinutes
		if e.Day.Before(from.Time) {
			from = e.Day
		}
		if e.Day.After(to.Time) {
			to = e.Day
		}
	}

	rate := decimal.Zero
	if entries[0].HourlyRate != nil {
		rate = *entries[0].HourlyRate
	}
	totalHours := decimal.NewFromInt(totalMinutes).Div(minutesPerHour).Round(MinorUnits)

	return TimesheetSummary{
		TotalMinutes: totalMinutes,
		TotalHours:   totalHours,
		HourlyRate:   rate,
		TotalAmount:  totalHours.Mul(rate).Round(MinorUnits),
		From:         from,
		To:           to,
	}, nil
}
