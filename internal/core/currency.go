package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NeedsConversion reports whether an amount in currency from must be
// reconciled against currency to. Codes compare case-insensitively.
func NeedsConversion(from, to string) bool {
	return !strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to))
}

// Convert reconciles an amount into another currency at the given rate,
// rounded at exit. Identity conversions return the amount unchanged and
// ignore the rate entirely, so no quote is needed for same-currency
// invoices.
func Convert(amount decimal.Decimal, from, to string, rate decimal.Decimal) (decimal.Decimal, error) {
	if !NeedsConversion(from, to) {
		return amount, nil
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: rate %s for %s->%s", ErrInvalidInput, rate, from, to)
	}
	return amount.Mul(rate).Round(MinorUnits), nil
}
