// Package memory is a fixed-table rates.Source for tests and offline use.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

type Source struct {
	mu    sync.RWMutex
	table map[string]decimal.Decimal
}

func New() *Source {
	return &Source{table: make(map[string]decimal.Decimal)}
}

// Set registers a rate for the pair. The inverse pair is derived
// automatically so tests only seed one direction.
func (s *Source) Set(from, to string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table[pairKey(from, to)] = rate
	if rate.IsPositive() {
		s.table[pairKey(to, from)] = decimal.NewFromInt(1).Div(rate)
	}
}

func (s *Source) GetRate(_ context.Context, from, to string, asOf core.Date) (core.RateQuote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.table[pairKey(from, to)]
	if !ok {
		return core.RateQuote{}, fmt.Errorf("%w: no fixed rate for %s->%s", core.ErrConversionUnavailable, from, to)
	}
	return core.RateQuote{
		From: strings.ToUpper(strings.TrimSpace(from)),
		To:   strings.ToUpper(strings.TrimSpace(to)),
		Rate: rate,
		AsOf: asOf,
	}, nil
}

func pairKey(from, to string) string {
	return strings.ToUpper(strings.TrimSpace(from)) + "/" + strings.ToUpper(strings.TrimSpace(to))
}
