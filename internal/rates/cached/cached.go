// Package cached decorates a rate source with an in-memory cache. A quote
// for a given currency pair and date is immutable once fetched, so caching
// avoids hammering the provider when several invoices share an issue date.
package cached

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fatture/internal/cache"
	"fatture/internal/core"
	"fatture/internal/rates"
)

type Source struct {
	next   rates.Source
	quotes cache.Cache[core.RateQuote]
}

func New(next rates.Source, maxSize int, ttl time.Duration) *Source {
	return &Source{
		next:   next,
		quotes: cache.NewLRU[core.RateQuote](maxSize, ttl),
	}
}

func (s *Source) GetRate(ctx context.Context, from, to string, asOf core.Date) (core.RateQuote, error) {
	key := quoteKey(from, to, asOf)
	if q, ok := s.quotes.Get(key); ok {
		return q, nil
	}

	q, err := s.next.GetRate(ctx, from, to, asOf)
	if err != nil {
		// Failures are not cached; the next invoice retries the provider.
		return core.RateQuote{}, err
	}

	s.quotes.Set(key, q)
	return q, nil
}

func quoteKey(from, to string, asOf core.Date) string {
	return fmt.Sprintf("%s|%s|%s", strings.ToUpper(from), strings.ToUpper(to), asOf.Format("2006-01-02"))
}
