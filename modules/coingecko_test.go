package modules

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinpulse/pkg/cache"
	"coinpulse/pkg/network"
)

const marketsBody = `[{
  "id": "bitcoin", "symbol": "btc", "name": "Bitcoin",
  "current_price": 65123.456, "price_change_percentage_24h": -2.345,
  "high_24h": 66000, "low_24h": 64000.5, "market_cap_rank": 1,
  "market_cap": 1283000000000, "ath": 73738, "total_volume": 32000000000,
  "last_updated": "2024-05-01T11:59:00.000Z"
}]`

func newMarketServer(t *testing.T, calls *atomic.Int32, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoinGecko_Snapshot(t *testing.T) {
	var calls atomic.Int32
	srv := newMarketServer(t, &calls, http.StatusOK, marketsBody)

	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL, APIKey: "demo-key"}, nil, nil, nil, nil)
	snap, err := c.Snapshot(context.Background(), "BTC")
	require.NoError(t, err)

	assert.Equal(t, "bitcoin", snap.ID)
	assert.Equal(t, 65123.456, snap.Price)
	assert.Equal(t, -2.345, snap.Change24h)
	assert.Equal(t, 66000.0, snap.High24h)
	assert.Equal(t, 64000.5, snap.Low24h)
	assert.Equal(t, 1, snap.MarketCapRank)
	assert.Equal(t, 1283000000000.0, snap.MarketCap)
	assert.Equal(t, 73738.0, snap.AllTimeHigh)
	assert.Equal(t, time.Date(2024, 5, 1, 11, 59, 0, 0, time.UTC), snap.LastUpdated)
}

func TestCoinGecko_CachesSnapshots(t *testing.T) {
	var calls atomic.Int32
	srv := newMarketServer(t, &calls, http.StatusOK, marketsBody)

	fc := clockwork.NewFakeClock()
	mc := cache.NewMemoryCache(fc)
	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL, APIKey: "demo-key", CacheTTL: 30 * time.Second}, nil, mc, fc, nil)

	for range 3 {
		_, err := c.Snapshot(context.Background(), "bitcoin")
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())

	fc.Advance(31 * time.Second)
	_, err := c.Snapshot(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCoinGecko_EmptyResult(t *testing.T) {
	var calls atomic.Int32
	srv := newMarketServer(t, &calls, http.StatusOK, `[]`)

	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL, APIKey: "demo-key"}, nil, nil, nil, nil)
	_, err := c.Snapshot(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, ErrMarketUnavailable)
}

func TestCoinGecko_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := newMarketServer(t, &calls, http.StatusServiceUnavailable, `{"error":"down"}`)

	fc := clockwork.NewFakeClock()
	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL, APIKey: "demo-key"}, nil, nil, fc, nil)

	for range 3 {
		_, err := c.Snapshot(context.Background(), "bitcoin")
		var se *StatusError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	}
	assert.Equal(t, network.CircuitOpen, c.Breaker().State())

	_, err := c.Snapshot(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, ErrMarketUnavailable)
	assert.ErrorIs(t, err, network.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())

	fc.Advance(2 * time.Minute)
	_, _ = c.Snapshot(context.Background(), "bitcoin")
	assert.Equal(t, int32(4), calls.Load())
}

func TestCoinGecko_UnknownAssetsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Query().Get("ids") {
		case "bitcoin":
			_, _ = w.Write([]byte(marketsBody))
		case "forbidden":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)

	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL}, nil, nil, clockwork.NewFakeClock(), nil)

	for range 3 {
		_, err := c.Snapshot(context.Background(), "notacoin")
		assert.ErrorIs(t, err, ErrMarketUnavailable)
		_, err = c.Snapshot(context.Background(), "forbidden")
		var se *StatusError
		require.True(t, errors.As(err, &se))
	}
	assert.Equal(t, network.CircuitClosed, c.Breaker().State())

	snap, err := c.Snapshot(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", snap.ID)
	assert.Equal(t, int32(7), calls.Load())
}

func TestCoinGecko_CancelledCallsKeepBreakerClosed(t *testing.T) {
	var calls atomic.Int32
	srv := newMarketServer(t, &calls, http.StatusOK, marketsBody)

	c := NewCoinGeckoClient(CoinGeckoConfig{BaseURL: srv.URL, APIKey: "demo-key"}, nil, nil, clockwork.NewFakeClock(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 5 {
		_, err := c.Snapshot(ctx, "bitcoin")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, network.CircuitClosed, c.Breaker().State())

	_, err := c.Snapshot(context.Background(), "bitcoin")
	require.NoError(t, err)
}

func TestResolveAssetID(t *testing.T) {
	assert.Equal(t, "bitcoin", ResolveAssetID(" BTC "))
	assert.Equal(t, "ethereum", ResolveAssetID("eth"))
	assert.Equal(t, "bitcoin", ResolveAssetID("bitcoin"))
	assert.Equal(t, "some-new-coin", ResolveAssetID("Some-New-Coin"))
}
