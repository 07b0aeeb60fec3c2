package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/jonboulle/clockwork"

	apperrors "coinpulse/pkg/errors"
	"coinpulse/pkg/logging"
	"coinpulse/pkg/metrics"
)

const successPrefix = "Sentiment processed successfully.\n\n"

var workspaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateWorkspaceID rejects empty or malformed workspace identifiers.
func ValidateWorkspaceID(id string) error {
	if id == "" {
		return apperrors.ValidationError("workspace id is required")
	}
	if !workspaceIDPattern.MatchString(id) {
		return apperrors.ValidationError("workspace id is invalid").WithContext("workspace_id", id)
	}
	return nil
}

// PostCollector is the collection step of a pipeline run.
type PostCollector interface {
	Collect(ctx context.Context, workspaceID string) ([]Post, error)
}

// Pipeline runs one sentiment invocation end to end: collect, aggregate,
// render and deliver.
type Pipeline struct {
	collector  PostCollector
	aggregator *Aggregator
	market     MarketSource
	assetID    string
	assetName  string
	notifiers  []Notifier
	recipients *Recipients
	timeout    time.Duration
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

type PipelineConfig struct {
	AssetID   string
	AssetName string
	Timeout   time.Duration // zero means no invocation bound
}

func NewPipeline(
	collector PostCollector,
	aggregator *Aggregator,
	market MarketSource,
	notifiers []Notifier,
	recipients *Recipients,
	cfg PipelineConfig,
	clock clockwork.Clock,
	m *metrics.Metrics,
) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if recipients == nil {
		recipients = NewRecipients("", clock)
	}
	return &Pipeline{
		collector:  collector,
		aggregator: aggregator,
		market:     market,
		assetID:    cfg.AssetID,
		assetName:  cfg.AssetName,
		notifiers:  notifiers,
		recipients: recipients,
		timeout:    cfg.Timeout,
		clock:      clock,
		metrics:    m,
		logger:     slog.Default().With("component", "pipeline"),
	}
}

// Run executes one invocation for workspaceID and returns the success text
// containing the rendered report.
func (p *Pipeline) Run(ctx context.Context, workspaceID string) (result string, err error) {
	ctx, _ = logging.EnsureID(ctx)
	start := p.clock.Now()
	defer func() {
		p.metrics.ObservePipeline(resultLabel(err), p.clock.Since(start).Seconds())
	}()

	if err := ValidateWorkspaceID(workspaceID); err != nil {
		p.logger.WarnContext(ctx, "Rejected invocation", "error", err)
		return "", err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	p.logger.InfoContext(ctx, "Processing sentiment", "workspace_id", workspaceID)

	posts, err := p.collector.Collect(ctx, workspaceID)
	if err != nil {
		p.logger.ErrorContext(ctx, "Collection failed", "workspace_id", workspaceID, "error", err)
		if apperrors.IsType(err, apperrors.TypeFetch) {
			return "", err
		}
		return "", apperrors.FetchError("failed to collect posts", err)
	}

	report, err := p.aggregator.Aggregate(ctx, posts)
	if err != nil {
		if !apperrors.IsType(err, apperrors.TypeMarketData) {
			return "", err
		}
		p.logger.WarnContext(ctx, "Market enrichment skipped", "error", err)
	}
	p.metrics.SetAggregatedScore(report.Score)

	text := RenderReport(report)
	p.deliver(ctx, text)

	p.logger.InfoContext(ctx, "Sentiment processed",
		"posts", report.TotalPosts,
		"score", report.Score,
		"market", report.Market.Status.String())
	return successPrefix + text, nil
}

// deliver fans the report out to every channel. Failures are logged and
// counted but never fail the invocation.
func (p *Pipeline) deliver(ctx context.Context, text string) {
	recipient := p.recipients.Get()
	for _, n := range p.notifiers {
		err := n.Deliver(ctx, recipient, text)
		switch {
		case err == nil:
			p.metrics.ObserveDelivery(n.Name(), "success")
		case errors.Is(err, ErrNoRecipient):
			p.metrics.ObserveDelivery(n.Name(), "skipped")
			p.logger.InfoContext(ctx, "Delivery skipped, no recipient registered", "channel", n.Name())
		default:
			p.metrics.ObserveDelivery(n.Name(), "error")
			p.logger.ErrorContext(ctx, "Delivery failed", "channel", n.Name(), "error", err)
		}
	}
}

// Market renders the current snapshot for asset, or the configured asset when
// empty.
func (p *Pipeline) Market(ctx context.Context, asset string) (string, error) {
	if p.market == nil {
		return "", apperrors.ConfigError("market data is disabled")
	}
	name := p.assetName
	if asset == "" {
		asset = p.assetID
	} else {
		name = ""
	}

	snap, err := p.market.Snapshot(ctx, asset)
	if err != nil {
		p.logger.WarnContext(ctx, "Market snapshot failed", "asset", asset, "error", err)
		return "", apperrors.MarketDataError(fmt.Sprintf("market data for %s unavailable", asset), err)
	}
	return RenderMarket(snap, name), nil
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := apperrors.As(err); ok {
		return string(e.Type) + "_error"
	}
	return "error"
}
