package modules

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	apperrors "coinpulse/pkg/errors"
)

// MarketSource supplies the market snapshot for an asset.
type MarketSource interface {
	Snapshot(ctx context.Context, assetID string) (MarketSnapshot, error)
}

// Aggregator scores posts and builds the sentiment report.
type Aggregator struct {
	scorer     Scorer
	thresholds Thresholds
	market     MarketSource // nil disables enrichment
	assetID    string
	assetName  string
	clock      clockwork.Clock
	logger     *slog.Logger
}

type AggregatorConfig struct {
	Thresholds *Thresholds // nil means DefaultThresholds
	AssetID    string
	AssetName  string
}

func NewAggregator(scorer Scorer, market MarketSource, cfg AggregatorConfig, clock clockwork.Clock) *Aggregator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	thresholds := DefaultThresholds()
	if cfg.Thresholds != nil {
		thresholds = *cfg.Thresholds
	}
	return &Aggregator{
		scorer:     scorer,
		thresholds: thresholds,
		market:     market,
		assetID:    cfg.AssetID,
		assetName:  cfg.AssetName,
		clock:      clock,
		logger:     slog.Default().With("component", "aggregator"),
	}
}

// Aggregate always returns a complete report. When market enrichment fails
// the report carries MarketUnavailable and the error is a MarketDataError.
func (a *Aggregator) Aggregate(ctx context.Context, posts []Post) (Report, error) {
	var counts BucketCounts
	for _, p := range posts {
		counts.Add(a.thresholds.Classify(Normalize(a.scorer.Score(p.Text))))
	}

	report := Report{
		Asset:       a.assetName,
		TotalPosts:  len(posts),
		Counts:      counts,
		Score:       counts.WeightedScore(),
		Breakdown:   percentages(counts),
		GeneratedAt: a.clock.Now().UTC(),
		Market:      MarketInfo{Status: MarketNotRequested},
	}

	a.logger.DebugContext(ctx, "Scored posts",
		"posts", report.TotalPosts,
		"positive", counts.Positive,
		"neutral", counts.Neutral,
		"negative", counts.Negative,
		"score", report.Score)

	if a.market == nil {
		return report, nil
	}

	snap, err := a.market.Snapshot(ctx, a.assetID)
	if err != nil {
		report.Market = MarketInfo{Status: MarketUnavailable}
		return report, apperrors.MarketDataError("market enrichment unavailable", err).WithContext("asset", a.assetID)
	}
	report.Market = MarketInfo{Status: MarketAvailable, Snapshot: snap}
	return report, nil
}

// percentages rounds each bucket share to two decimal places.
func percentages(c BucketCounts) Breakdown {
	total := c.Total()
	if total == 0 {
		return Breakdown{}
	}
	share := func(n int) float64 {
		return decimal.NewFromInt(int64(n)).
			Mul(decimal.NewFromInt(100)).
			DivRound(decimal.NewFromInt(int64(total)), 2).
			InexactFloat64()
	}
	return Breakdown{
		Positive: share(c.Positive),
		Neutral:  share(c.Neutral),
		Negative: share(c.Negative),
	}
}
