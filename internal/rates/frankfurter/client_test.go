package frankfurter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fatture/internal/core"
)

func TestGetRate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2026-02-01", r.URL.Path)
		assert.Equal(t, "USD", r.URL.Query().Get("base"))
		assert.Equal(t, "CHF", r.URL.Query().Get("symbols"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2026-02-01","rates":{"CHF":0.92}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	q, err := c.GetRate(context.Background(), "usd", "chf", core.NewDate(2026, 2, 1))
	require.NoError(t, err)

	assert.Equal(t, "USD", q.From)
	assert.Equal(t, "CHF", q.To)
	assert.Equal(t, "0.92", q.Rate.String())
}

func TestGetRateProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.GetRate(context.Background(), "USD", "CHF", core.NewDate(2026, 2, 1))
	assert.ErrorIs(t, err, core.ErrConversionUnavailable)
}

func TestGetRateMissingPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rates":{}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.GetRate(context.Background(), "USD", "XXX", core.NewDate(2026, 2, 1))
	assert.ErrorIs(t, err, core.ErrConversionUnavailable)
}

func TestGetRateUnreachable(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.GetRate(context.Background(), "USD", "CHF", core.NewDate(2026, 2, 1))
	assert.ErrorIs(t, err, core.ErrConversionUnavailable)
}
