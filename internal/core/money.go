// Package core holds the invoice calculation engine: pure money math,
// currency reconciliation, time entry aggregation and status derivation.
//
// All arithmetic runs on decimal.Decimal at full precision; values are
// rounded to the currency minor unit (2 decimals everywhere in use) only
// at the point they leave the engine, so rounding error never compounds
// across items.
package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnits is the rounding precision for every currency in use.
const MinorUnits = 2

var oneHundred = decimal.NewFromInt(100)

// Totals is the persisted total set of an invoice. Invariant:
// Total = Subtotal + VATAmount exactly, at MinorUnits precision.
type Totals struct {
	Subtotal  decimal.Decimal
	VATAmount decimal.Decimal
	Total     decimal.Decimal
}

// LineItemTotal returns quantity × um × unit price, rounded at exit.
func LineItemTotal(it LineItem) (decimal.Decimal, error) {
	raw, err := rawItemTotal(it)
	if err != nil {
		return decimal.Zero, err
	}
	return raw.Round(MinorUnits), nil
}

// LineItemVAT returns the item's VAT contribution, computed on the
// unrounded item total, rounded at exit.
func LineItemVAT(it LineItem) (decimal.Decimal, error) {
	raw, err := rawItemVAT(it)
	if err != nil {
		return decimal.Zero, err
	}
	return raw.Round(MinorUnits), nil
}

// Aggregate folds a list of line items and an invoice-level discount into
// the total set. The discount reduces the subtotal only; VAT is computed
// on each item's pre-discount amount. This is the stated policy: items
// carry per-item VAT rates, and reallocating a proportional discount
// across differing rates would be ambiguous.
//
// An empty item list yields all-zero totals, not an error. A negative
// operand anywhere fails with ErrInvalidInput.
func Aggregate(items []LineItem, discountPercent decimal.Decimal) (Totals, error) {
	if discountPercent.IsNegative() {
		return Totals{}, fmt.Errorf("%w: negative discount %s", ErrInvalidInput, discountPercent)
	}

	rawSubtotal := decimal.Zero
	rawVAT := decimal.Zero
	for i, it := range items {
		t, err := rawItemTotal(it)
		if err != nil {
			return Totals{}, fmt.Errorf("item %d: %w", i, err)
		}
		v, err := rawItemVAT(it)
		if err != nil {
			return Totals{}, fmt.Errorf("item %d: %w", i, err)
		}
		rawSubtotal = rawSubtotal.Add(t)
		rawVAT = rawVAT.Add(v)
	}

	discountAmount := rawSubtotal.Mul(discountPercent).Div(oneHundred)
	subtotal := rawSubtotal.Sub(discountAmount).Round(MinorUnits)
	vatAmount := rawVAT.Round(MinorUnits)

	// Total is the sum of the two rounded components, never an
	// independently rounded raw sum, so the stored invariant holds.
	return Totals{
		Subtotal:  subtotal,
		VATAmount: vatAmount,
		Total:     subtotal.Add(vatAmount),
	}, nil
}

// AverageVATRate is the single summary rate stored per invoice for
// downstream reporting: total VAT over the discounted subtotal, as a
// percentage rounded at exit. A zero subtotal resolves to 0.
func AverageVATRate(vatAmount, subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.IsZero() {
		return decimal.Zero
	}
	return vatAmount.Div(subtotal).Mul(oneHundred).Round(MinorUnits)
}

func rawItemTotal(it LineItem) (decimal.Decimal, error) {
	if it.Quantity.IsNegative() || it.UnitPrice.IsNegative() || it.UnitMultiplier.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative quantity, um or price", ErrInvalidInput)
	}
	um := it.UnitMultiplier
	if um.IsZero() {
		um = decimal.NewFromInt(1)
	}
	return it.Quantity.Mul(um).Mul(it.UnitPrice), nil
}

func rawItemVAT(it LineItem) (decimal.Decimal, error) {
	if it.VATRate.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative VAT rate", ErrInvalidInput)
	}
	raw, err := rawItemTotal(it)
	if err != nil {
		return decimal.Zero, err
	}
	return raw.Mul(it.VATRate).Div(oneHundred), nil
}
