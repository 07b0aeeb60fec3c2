package modules

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "coinpulse/pkg/errors"
	"coinpulse/pkg/logging"
	"coinpulse/pkg/metrics"
)

type pipelineFixture struct {
	searcher   *fakeSearcher
	market     *fakeMarket
	webhook    *fakeNotifier
	slack      *fakeNotifier
	recipients *Recipients
	metrics    *metrics.Metrics
	pipeline   *Pipeline
}

func newPipelineFixture(t *testing.T, market *fakeMarket) *pipelineFixture {
	t.Helper()
	fc := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f := &pipelineFixture{
		searcher: &fakeSearcher{pages: map[string]PageResult{
			"": {
				Posts: []Post{
					post("1", "good good", 10, 0, 0),
					post("2", "bad bad", 10, 0, 0),
					post("3", "meh", 0, 0, 0),
				},
				NextCursor: "c2",
			},
			"c2": {Posts: []Post{post("4", "good good good", 0, 7, 0)}},
		}},
		market:     market,
		webhook:    &fakeNotifier{name: "webhook"},
		slack:      &fakeNotifier{name: "slack"},
		recipients: NewRecipients("chat-1", nil),
		metrics:    metrics.New(prometheus.NewRegistry()),
	}

	collector := NewCollector(f.searcher, CollectorConfig{Query: "bitcoin", Lookback: time.Hour, PageSize: 100, MaxPages: 5}, fc, f.metrics)
	var src MarketSource
	if market != nil {
		src = market
	}
	aggregator := NewAggregator(wordScorer, src, AggregatorConfig{AssetID: "bitcoin", AssetName: "Bitcoin"}, fc)
	f.pipeline = NewPipeline(collector, aggregator, src, []Notifier{f.webhook, f.slack}, f.recipients,
		PipelineConfig{AssetID: "bitcoin", AssetName: "Bitcoin", Timeout: time.Minute}, fc, f.metrics)
	return f
}

func TestPipeline_Run(t *testing.T) {
	f := newPipelineFixture(t, &fakeMarket{snap: MarketSnapshot{Price: 65000, Change24h: 1}})

	out, err := f.pipeline.Run(context.Background(), "ws_1")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(out, "Sentiment processed successfully.\n\n"))
	report := strings.TrimPrefix(out, "Sentiment processed successfully.\n\n")
	assert.Contains(t, report, "Current Price*: $65000.00")
	assert.Contains(t, report, "(3 posts analyzed)")
	assert.Contains(t, report, "Positive Sentiment: 66.67%")

	require.Len(t, f.webhook.delivered, 1)
	assert.Equal(t, delivery{recipient: "chat-1", text: report}, f.webhook.delivered[0])
	require.Len(t, f.slack.delivered, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PipelineRuns.WithLabelValues("success")))
	assert.InDelta(t, 66.67, testutil.ToFloat64(f.metrics.AggregatedScore), 0.01)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.PagesFetched))
}

func TestPipeline_InvalidWorkspace(t *testing.T) {
	f := newPipelineFixture(t, nil)

	for _, ws := range []string{"", "has space", "../etc", strings.Repeat("x", 65)} {
		_, err := f.pipeline.Run(context.Background(), ws)
		require.Error(t, err, ws)
		assert.True(t, apperrors.IsType(err, apperrors.TypeValidation), ws)
	}
	assert.Empty(t, f.searcher.requests)
	assert.Equal(t, 4.0, testutil.ToFloat64(f.metrics.PipelineRuns.WithLabelValues("validation_error")))
}

func TestPipeline_FetchErrorNoDelivery(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.searcher.failAt = "c2"
	f.searcher.err = errors.New("rate limited")

	out, err := f.pipeline.Run(context.Background(), "ws")
	require.Error(t, err)
	assert.Empty(t, out)
	assert.True(t, apperrors.IsType(err, apperrors.TypeFetch))
	assert.Empty(t, f.webhook.delivered)
	assert.Empty(t, f.slack.delivered)
}

func TestPipeline_MarketFailureDegrades(t *testing.T) {
	f := newPipelineFixture(t, &fakeMarket{err: errors.New("timeout")})

	out, err := f.pipeline.Run(context.Background(), "ws")
	require.NoError(t, err)
	assert.Contains(t, out, "Market data unavailable")
	assert.Contains(t, out, "Sentiment Breakdown")
	assert.Len(t, f.webhook.delivered, 1)
}

func TestPipeline_DeliveryFailureDoesNotFailRun(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.webhook.err = apperrors.DeliveryError("webhook rejected message", errors.New("403"))
	f.recipients.Set("")

	out, err := f.pipeline.Run(context.Background(), "ws")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Len(t, f.slack.delivered, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Deliveries.WithLabelValues("webhook", "error")))
	assert.Equal(t, "", f.slack.delivered[0].recipient)
}

func TestPipeline_UsesRecipientAtInvocation(t *testing.T) {
	f := newPipelineFixture(t, nil)

	_, err := f.pipeline.Run(context.Background(), "ws")
	require.NoError(t, err)
	f.recipients.Set("chat-2")
	_, err = f.pipeline.Run(context.Background(), "ws")
	require.NoError(t, err)

	require.Len(t, f.webhook.delivered, 2)
	assert.Equal(t, "chat-1", f.webhook.delivered[0].recipient)
	assert.Equal(t, "chat-2", f.webhook.delivered[1].recipient)
}

func TestPipeline_KeepsCorrelationID(t *testing.T) {
	f := newPipelineFixture(t, nil)
	var seen []string
	f.pipeline.notifiers = []Notifier{notifierFunc(func(ctx context.Context) {
		id, _ := logging.ID(ctx)
		seen = append(seen, id)
	})}

	_, err := f.pipeline.Run(logging.WithID(context.Background(), "abc12345"), "ws")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc12345"}, seen)
}

type notifierFunc func(ctx context.Context)

func (notifierFunc) Name() string { return "func" }

func (f notifierFunc) Deliver(ctx context.Context, _, _ string) error {
	f(ctx)
	return nil
}

func TestPipeline_Market(t *testing.T) {
	f := newPipelineFixture(t, &fakeMarket{snap: MarketSnapshot{Name: "Ethereum", Price: 3000, Change24h: -1}})

	text, err := f.pipeline.Market(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, text, "*Bitcoin Market*")

	text, err = f.pipeline.Market(context.Background(), "eth")
	require.NoError(t, err)
	assert.Contains(t, text, "*Ethereum Market*")
	assert.Contains(t, text, "drop in price")

	f.market.err = errors.New("down")
	_, err = f.pipeline.Market(context.Background(), "")
	assert.True(t, apperrors.IsType(err, apperrors.TypeMarketData))

	noMarket := newPipelineFixture(t, nil)
	_, err = noMarket.pipeline.Market(context.Background(), "")
	assert.True(t, apperrors.IsType(err, apperrors.TypeConfig))
}
