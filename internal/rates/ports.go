// Package rates defines the outbound port for exchange-rate lookup.
//
// Quotes come from an external provider that may fail or be unavailable;
// the invoice service treats every failure here as a recoverable
// degradation and never blocks a save on it.
package rates

import (
	"context"

	"fatture/internal/core"
)

// Source resolves the exchange rate for a currency pair as of a given
// date (an invoice's issue date). Implementations map any provider
// failure to core.ErrConversionUnavailable.
type Source interface {
	GetRate(ctx context.Context, from, to string, asOf core.Date) (core.RateQuote, error)
}
