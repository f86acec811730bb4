package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed or negative numeric input reaching
	// the calculation engine. Inputs are validated upstream, so hitting
	// this is a programming error, not a business case.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyBatch is returned when a summary is requested over zero
	// time entries. A summary over nothing is undefined, not zero.
	ErrEmptyBatch = errors.New("empty time entry batch")

	// ErrConversionUnavailable signals that an exchange rate could not be
	// obtained. Recoverable: the invoice is saved in its native currency
	// with the converted fields left absent.
	ErrConversionUnavailable = errors.New("exchange rate unavailable")

	// ErrPartialInvoicing signals that an invoice was saved but the
	// billed time entries could not all be flipped to invoiced. The
	// invoice is never rolled back; the caller must retry the entry
	// update until both sides agree.
	ErrPartialInvoicing = errors.New("entries not marked invoiced")

	// ErrNotBillable is returned when a time entry without an hourly
	// rate, or one already invoiced, is offered for aggregation.
	ErrNotBillable = errors.New("time entry not billable")
)

// ItemValidationError is a field-level validation failure, carrying which
// item and which field so callers can present it contextually. Index -1
// refers to the invoice as a whole.
type ItemValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ItemValidationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("item %d: %s: %s", e.Index, e.Field, e.Reason)
}
