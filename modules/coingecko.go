package modules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"coinpulse/pkg/cache"
	"coinpulse/pkg/metrics"
	"coinpulse/pkg/network"
)

// ErrMarketUnavailable is returned when no snapshot could be obtained.
var ErrMarketUnavailable = errors.New("market data unavailable")

// Small coin symbol -> coingecko id mapping for common tokens.
// Keys must be unique and lowercase.
var cgSymbolToID = map[string]string{
	"btc":   "bitcoin",
	"eth":   "ethereum",
	"bnb":   "binancecoin",
	"sol":   "solana",
	"matic": "matic-network",
	"ada":   "cardano",
	"doge":  "dogecoin",
	"usdt":  "tether",
	"usdc":  "usd-coin",
	"ltc":   "litecoin",
	"avax":  "avalanche-2",
	"dot":   "polkadot",
	"link":  "chainlink",
	"shib":  "shiba-inu",
	"uni":   "uniswap",
	"atom":  "cosmos",
	"op":    "optimism",
	"arb":   "arbitrum",
}

// ResolveAssetID maps a ticker symbol to its CoinGecko id. Unknown input is
// assumed to already be an id.
func ResolveAssetID(symbolOrID string) string {
	s := strings.ToLower(strings.TrimSpace(symbolOrID))
	if id, ok := cgSymbolToID[s]; ok {
		return id
	}
	return s
}

// MarketSnapshot holds the values we extract from CoinGecko.
type MarketSnapshot struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name"`
	Price         float64   `json:"current_price"`
	Change24h     float64   `json:"price_change_percentage_24h"` // percentage
	High24h       float64   `json:"high_24h"`
	Low24h        float64   `json:"low_24h"`
	MarketCapRank int       `json:"market_cap_rank"`
	MarketCap     float64   `json:"market_cap"`
	AllTimeHigh   float64   `json:"ath"`
	Volume24h     float64   `json:"total_volume"`
	LastUpdated   time.Time `json:"last_updated"`
}

// CoinGeckoClient reads /coins/markets snapshots, caching them for a short
// TTL and short-circuiting while the API keeps failing.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      cache.Cache
	ttl        time.Duration
	breaker    *network.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type CoinGeckoConfig struct {
	BaseURL  string
	APIKey   string // sent as x-cg-demo-api-key when set
	CacheTTL time.Duration
}

func NewCoinGeckoClient(cfg CoinGeckoConfig, httpClient *http.Client, c cache.Cache, clock clockwork.Clock, m *metrics.Metrics) *CoinGeckoClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c == nil {
		c = &cache.NoOpCache{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CoinGeckoClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		cache:      c,
		ttl:        cfg.CacheTTL,
		breaker:    network.NewCircuitBreaker("coingecko", 3, time.Minute, clock),
		metrics:    m,
		logger:     slog.Default().With("component", "coingecko"),
	}
}

// Breaker exposes the client's circuit breaker for status reporting.
func (c *CoinGeckoClient) Breaker() *network.CircuitBreaker {
	return c.breaker
}

// Snapshot returns the USD market snapshot for asset (id or known symbol).
func (c *CoinGeckoClient) Snapshot(ctx context.Context, asset string) (MarketSnapshot, error) {
	id := ResolveAssetID(asset)
	if id == "" {
		return MarketSnapshot{}, fmt.Errorf("%w: empty asset id", ErrMarketUnavailable)
	}
	key := "market:usd:" + id

	if raw, err := c.cache.Get(ctx, key); err == nil {
		var snap MarketSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			c.metrics.ObserveMarket("cache", "hit")
			return snap, nil
		}
	} else if !errors.Is(err, cache.ErrCacheKeyNotFound) {
		c.logger.WarnContext(ctx, "Market cache read failed", "key", key, "error", err)
	}

	var (
		snap     MarketSnapshot
		fetchErr error
	)
	err := c.breaker.Call(func() error {
		snap, fetchErr = c.fetch(ctx, id)
		if ctx.Err() != nil || !isProviderFailure(fetchErr) {
			return nil
		}
		return fetchErr
	})
	if err == nil {
		err = fetchErr
	}
	if err != nil {
		c.metrics.ObserveMarket("api", "error")
		if errors.Is(err, network.ErrCircuitOpen) {
			return MarketSnapshot{}, fmt.Errorf("%w: %w", ErrMarketUnavailable, err)
		}
		return MarketSnapshot{}, err
	}
	c.metrics.ObserveMarket("api", "success")

	if raw, err := json.Marshal(snap); err == nil {
		if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
			c.logger.WarnContext(ctx, "Market cache write failed", "key", key, "error", err)
		}
	}
	return snap, nil
}

// isProviderFailure reports whether err means CoinGecko itself is failing.
// Unknown assets and other 4xx answers are the caller's problem and leave the
// breaker alone.
func isProviderFailure(err error) bool {
	if err == nil || errors.Is(err, ErrMarketUnavailable) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

func (c *CoinGeckoClient) fetch(ctx context.Context, id string) (MarketSnapshot, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", id)
	endpoint := c.baseURL + "/coins/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("build coingecko request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return MarketSnapshot{}, fmt.Errorf("coingecko http err: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MarketSnapshot{}, newStatusError("coingecko", resp)
	}

	var out []MarketSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return MarketSnapshot{}, fmt.Errorf("coingecko decode err: %w", err)
	}
	if len(out) == 0 {
		return MarketSnapshot{}, fmt.Errorf("%w: no market entry for %q", ErrMarketUnavailable, id)
	}
	return out[0], nil
}
