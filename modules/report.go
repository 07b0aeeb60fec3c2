package modules

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MarketStatus tags whether a report carries market figures.
type MarketStatus int

const (
	MarketNotRequested MarketStatus = iota
	MarketAvailable
	MarketUnavailable
)

func (s MarketStatus) String() string {
	switch s {
	case MarketAvailable:
		return "available"
	case MarketUnavailable:
		return "unavailable"
	default:
		return "not_requested"
	}
}

// MarketInfo is the optional market part of a report. Snapshot is only
// meaningful when Status is MarketAvailable.
type MarketInfo struct {
	Status   MarketStatus
	Snapshot MarketSnapshot
}

// Breakdown holds bucket percentages rounded to two decimals.
type Breakdown struct {
	Positive float64 `json:"positive"`
	Neutral  float64 `json:"neutral"`
	Negative float64 `json:"negative"`
}

// Report is the aggregated outcome of one invocation.
type Report struct {
	Asset       string
	TotalPosts  int
	Counts      BucketCounts
	Score       float64
	Breakdown   Breakdown
	Market      MarketInfo
	GeneratedAt time.Time
}

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"

	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

// PriceTrend classifies a 24h percentage change by its sign.
func PriceTrend(change24h float64) Trend {
	switch {
	case change24h > 0:
		return TrendRising
	case change24h < 0:
		return TrendFalling
	default:
		return TrendStable
	}
}

// SentimentTrend classifies an aggregated score: above 60 is bullish, below
// 40 bearish.
func SentimentTrend(score float64) Trend {
	switch {
	case score > 60:
		return TrendBullish
	case score < 40:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

func priceInsight(asset string, t Trend) string {
	switch t {
	case TrendRising:
		return fmt.Sprintf("%s is currently on the rise, with an upward trend over the last 24 hours.", asset)
	case TrendFalling:
		return fmt.Sprintf("%s has experienced a drop in price over the last 24 hours. Caution is advised.", asset)
	default:
		return fmt.Sprintf("%s's price remains relatively stable over the last 24 hours.", asset)
	}
}

func sentimentInsight(t Trend) string {
	switch t {
	case TrendBullish:
		return "The market sentiment is positive, indicating a bullish outlook from the community."
	case TrendBearish:
		return "The market sentiment is negative, indicating bearish trends in the community."
	default:
		return "The market sentiment is neutral, indicating indecisiveness in the community."
	}
}

func usd(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func billions(v float64) string {
	return "$" + decimal.NewFromFloat(v).Div(decimal.NewFromInt(1_000_000_000)).StringFixed(2) + " Billion"
}

func signedPct(v float64) string {
	s := decimal.NewFromFloat(v).StringFixed(2) + "%"
	if v > 0 {
		return "+" + s
	}
	return s
}

func pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func writeMarketLines(b *strings.Builder, m MarketSnapshot) {
	fmt.Fprintf(b, "💰 *Current Price*: %s\n", usd(m.Price))
	fmt.Fprintf(b, "📉 *24h Change*: %s\n", signedPct(m.Change24h))
	fmt.Fprintf(b, "🔝 *24h High*: %s\n", usd(m.High24h))
	fmt.Fprintf(b, "🔻 *24h Low*: %s\n", usd(m.Low24h))
	b.WriteString("\n")
	fmt.Fprintf(b, "🏆 *Market Cap Rank*: #%d\n", m.MarketCapRank)
	fmt.Fprintf(b, "💵 *Market Cap*: %s\n", billions(m.MarketCap))
	b.WriteString("\n")
	fmt.Fprintf(b, "📈 *All-Time High (ATH)*: %s\n", usd(m.AllTimeHigh))
}

// RenderReport formats a report as chat-ready text. It has no side effects.
func RenderReport(r Report) string {
	asset := r.Asset
	if asset == "" {
		asset = "Market"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🟢 *%s Insights* 🟢\n\n", asset)

	switch r.Market.Status {
	case MarketAvailable:
		writeMarketLines(&b, r.Market.Snapshot)
		b.WriteString("\n")
		fmt.Fprintf(&b, "🚀 *Price Trend Insight*: %s\n", priceInsight(asset, PriceTrend(r.Market.Snapshot.Change24h)))
	case MarketUnavailable:
		b.WriteString("⚠️ Market data unavailable\n\n")
	}

	fmt.Fprintf(&b, "😊 *Sentiment Insight*: %s\n\n", sentimentInsight(SentimentTrend(r.Score)))

	b.WriteString("📊 *Sentiment Breakdown*:\n")
	fmt.Fprintf(&b, "- Positive Sentiment: %s\n", pct(r.Breakdown.Positive))
	fmt.Fprintf(&b, "- Neutral Sentiment: %s\n", pct(r.Breakdown.Neutral))
	fmt.Fprintf(&b, "- Negative Sentiment: %s\n\n", pct(r.Breakdown.Negative))

	fmt.Fprintf(&b, "📝 *Aggregated Sentiment*: %s (%d posts analyzed)", pct(r.Score), r.TotalPosts)
	return b.String()
}

// RenderMarket formats a standalone market snapshot.
func RenderMarket(m MarketSnapshot, asset string) string {
	if asset == "" {
		asset = nameOr(m.Symbol, m.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🟢 *%s Market* 🟢\n\n", asset)
	writeMarketLines(&b, m)
	b.WriteString("\n")
	fmt.Fprintf(&b, "🚀 *Price Trend*: %s", priceInsight(asset, PriceTrend(m.Change24h)))
	if !m.LastUpdated.IsZero() {
		fmt.Fprintf(&b, "\nData as of: %s", m.LastUpdated.UTC().Format(replyTimeLayout))
	}
	return b.String()
}

const replyTimeLayout = "2006-01-02 15:04:05 MST"

func nameOr(sym, name string) string {
	if name != "" {
		return name
	}
	if sym != "" {
		return strings.ToUpper(sym)
	}
	return "unknown"
}
