// Package frankfurter implements rates.Source against a frankfurter-style
// historical exchange-rate HTTP API.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fatture/internal/core"
)

const defaultBaseURL = "https://api.frankfurter.app"

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. An empty baseURL selects the public API; timeout
// bounds every lookup so a slow provider cannot delay an invoice save for
// long.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type rateResponse struct {
	Rates map[string]json.Number `json:"rates"`
}

// GetRate fetches the rate for from->to as of the given date. Historical
// dates hit the /{date} endpoint, so re-fetching a quote for an invoice's
// issue date is stable. All failures wrap core.ErrConversionUnavailable.
func (c *Client) GetRate(ctx context.Context, from, to string, asOf core.Date) (core.RateQuote, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	endpoint := fmt.Sprintf("%s/%s?base=%s&symbols=%s",
		c.baseURL, asOf.Format("2006-01-02"), url.QueryEscape(from), url.QueryEscape(to))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return core.RateQuote{}, fmt.Errorf("%w: build request: %v", core.ErrConversionUnavailable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return core.RateQuote{}, fmt.Errorf("%w: %s->%s: %v", core.ErrConversionUnavailable, from, to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.WarnContext(ctx, "Rate provider returned non-OK status",
			"status", resp.StatusCode,
			"from", from,
			"to", to,
			"body", string(body))
		return core.RateQuote{}, fmt.Errorf("%w: provider status %d", core.ErrConversionUnavailable, resp.StatusCode)
	}

	var parsed rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return core.RateQuote{}, fmt.Errorf("%w: decode response: %v", core.ErrConversionUnavailable, err)
	}

	raw, ok := parsed.Rates[to]
	if !ok {
		return core.RateQuote{}, fmt.Errorf("%w: no rate for %s->%s", core.ErrConversionUnavailable, from, to)
	}

	rate, err := decimal.NewFromString(raw.String())
	if err != nil || !rate.IsPositive() {
		return core.RateQuote{}, fmt.Errorf("%w: bad rate %q for %s->%s", core.ErrConversionUnavailable, raw, from, to)
	}

	return core.RateQuote{From: from, To: to, Rate: rate, AsOf: asOf}, nil
}
