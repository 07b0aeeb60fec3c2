// main.go
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TeneoProtocolAI/teneo-agent-sdk/pkg/agent"
	"github.com/jonboulle/clockwork"

	"coinpulse/modules"
	"coinpulse/pkg/cache"
	"coinpulse/pkg/config"
	"coinpulse/pkg/lexicon"
	"coinpulse/pkg/logging"
	"coinpulse/pkg/metrics"
	"coinpulse/pkg/naming"
	"coinpulse/pkg/network"
	"coinpulse/pkg/server"
	"coinpulse/pkg/version"
)

const cacheProbeInterval = 30 * time.Second

// capabilitiesFor returns the advertised capabilities, led by the
// asset-specific sentiment capability.
func capabilitiesFor(assetName string) ([]string, error) {
	primary := naming.CapabilityName(assetName, "sentiment analysis")
	if err := naming.ValidateCapability(primary, nil).Err(); err != nil {
		return nil, err
	}
	return []string{primary, "sentiment-analysis", "market-snapshot"}, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting agent", "version", version.GetFullVersionString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Agent stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	capabilities, err := capabilitiesFor(cfg.AssetName)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	reg := metrics.NewRegistry()
	m := metrics.New(reg)

	snapshots, err := newCache(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer snapshots.Close()

	scorer, err := lexicon.New(nil)
	if err != nil {
		return err
	}

	var market modules.MarketSource
	if cfg.MarketEnrichment {
		market = modules.NewCoinGeckoClient(modules.CoinGeckoConfig{
			BaseURL:  cfg.CoinGeckoBaseURL,
			APIKey:   cfg.CoinGeckoAPIKey,
			CacheTTL: cfg.MarketCacheTTL,
		}, httpClient, snapshots, clock, m)
	}

	collector := modules.NewCollector(newSearcher(cfg, httpClient), modules.CollectorConfig{
		Query:      cfg.SearchQuery,
		Lookback:   cfg.Lookback,
		PageSize:   cfg.PageSize,
		MaxPages:   cfg.MaxPages,
		RatePerSec: cfg.SearchRatePerSec,
	}, clock, m)

	aggregator := modules.NewAggregator(scorer, market, modules.AggregatorConfig{
		Thresholds: &modules.Thresholds{Positive: cfg.PositiveThreshold, Negative: cfg.NegativeThreshold},
		AssetID:    cfg.AssetID,
		AssetName:  cfg.AssetName,
	}, clock)

	recipients := modules.NewRecipients(cfg.TelegramChatID, clock)
	pipeline := modules.NewPipeline(collector, aggregator, market, newNotifiers(cfg, httpClient), recipients,
		modules.PipelineConfig{AssetID: cfg.AssetID, AssetName: cfg.AssetName, Timeout: cfg.InvocationTimeout}, clock, m)

	sup := network.NewSupervisor(ctx)
	cacheMonitor := network.NewHealthMonitor("cache", snapshots.Ping, cacheProbeInterval, clock)

	srv := server.NewServer(server.Config{
		Port:               cfg.Port,
		DefaultWorkspaceID: cfg.WorkspaceID,
		RegisterRatePerSec: cfg.RegisterRatePerSec,
		RegisterBurst:      cfg.RegisterBurst,
	}, &server.AgentInfo{
		Name:         cfg.AgentName,
		Version:      version.Version(),
		Capabilities: capabilities,
		Description:  cfg.AgentDescription,
		Asset:        cfg.AssetName,
	}, pipeline, recipients,
		server.WithStatus(sup),
		server.WithChecks(server.MonitorCheck(cacheMonitor)),
		server.WithMetrics(m, metrics.Handler(reg)),
	)

	if err := sup.Register("http", srv.Run, network.DefaultRestartPolicy()); err != nil {
		return err
	}
	if err := sup.Register("cache-health", cacheMonitor.Run, network.DefaultRestartPolicy()); err != nil {
		return err
	}
	if cfg.ReportInterval > 0 {
		sched := modules.NewScheduler(pipeline, cfg.WorkspaceID, cfg.ReportInterval, clock)
		if err := sup.Register("scheduler", sched.Run, network.DefaultRestartPolicy()); err != nil {
			return err
		}
	}
	if err := sup.Start(); err != nil {
		return err
	}

	if cfg.AgentEnabled {
		if err := startAgent(cfg, capabilities, NewSentimentAgent(pipeline, capabilities[0], cfg.WorkspaceID)); err != nil {
			sup.Stop()
			return err
		}
	}

	<-ctx.Done()
	slog.Info("Shutting down")
	sup.Stop()
	return nil
}

// startAgent connects the handler to the Teneo network in the background.
func startAgent(cfg *config.Config, capabilities []string, handler *SentimentAgent) error {
	agentCfg := agent.DefaultConfig()
	agentCfg.Name = cfg.AgentName
	agentCfg.Description = cfg.AgentDescription
	agentCfg.Capabilities = capabilities
	agentCfg.PrivateKey = cfg.PrivateKey
	agentCfg.NFTTokenID = cfg.NFTTokenID
	agentCfg.OwnerAddress = cfg.OwnerAddress
	agentCfg.RateLimitPerMinute = cfg.RateLimitPerMinute

	enhancedAgent, err := agent.NewEnhancedAgent(&agent.EnhancedAgentConfig{
		Config:       agentCfg,
		AgentHandler: handler,
	})
	if err != nil {
		return err
	}

	slog.Info("Starting Teneo agent", "name", cfg.AgentName)
	go enhancedAgent.Run()
	return nil
}

// newCache prefers Redis when configured so replicas share market snapshots.
func newCache(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemoryCache(clock), nil
	}
	c, err := cache.NewRedisCache(ctx, cfg.RedisURL, "coinpulse")
	if err != nil {
		return nil, err
	}
	slog.Info("Using Redis snapshot cache")
	return c, nil
}

func newSearcher(cfg *config.Config, httpClient *http.Client) modules.Searcher {
	if cfg.UsesIntegration() {
		return modules.NewIntegrationClient(cfg.IntegrationBaseURL, cfg.IntegrationAPIKey, cfg.TwitterIntegrationID, httpClient).
			WithRetry(modules.SearchRetryPolicy("integration", cfg.SearchRetryAttempts))
	}
	return modules.NewXClient(cfg.XAPIBaseURL, cfg.XBearerToken, httpClient).
		WithRetry(modules.SearchRetryPolicy("x", cfg.SearchRetryAttempts))
}

func newNotifiers(cfg *config.Config, httpClient *http.Client) []modules.Notifier {
	notifiers := []modules.Notifier{modules.NewWebhookNotifier(cfg.TelegramWebhook, httpClient)}
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, modules.NewSlackNotifier(cfg.SlackWebhookURL, httpClient))
	}
	return notifiers
}
