// Package metrics exposes Prometheus collectors for the sentiment pipeline.
// All recording methods are safe to call on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinpulse"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves Prometheus metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

type Metrics struct {
	PipelineRuns     *prometheus.CounterVec
	PipelineDuration prometheus.Histogram
	PagesFetched     prometheus.Counter
	PostsFiltered    *prometheus.CounterVec
	MarketFetches    *prometheus.CounterVec
	Deliveries       *prometheus.CounterVec
	AggregatedScore  prometheus.Gauge
	Registrations    prometheus.Counter
}

// New creates and registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Sentiment pipeline invocations by result.",
		}, []string{"result"}),
		PipelineDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Duration of a full sentiment pipeline invocation.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "pages_fetched_total",
			Help:      "Search result pages fetched.",
		}),
		PostsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "posts_total",
			Help:      "Posts seen by the collector, by filter outcome.",
		}, []string{"outcome"}),
		MarketFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "fetches_total",
			Help:      "Market snapshot lookups by source (cache, api) and result.",
		}, []string{"source", "result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "messages_total",
			Help:      "Report deliveries by channel and result.",
		}, []string{"channel", "result"}),
		AggregatedScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sentiment",
			Name:      "aggregated_score",
			Help:      "Aggregated sentiment score (0-100) of the last successful run.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "recipient_registrations_total",
			Help:      "Recipient registrations received.",
		}),
	}

	reg.MustRegister(
		m.PipelineRuns,
		m.PipelineDuration,
		m.PagesFetched,
		m.PostsFiltered,
		m.MarketFetches,
		m.Deliveries,
		m.AggregatedScore,
		m.Registrations,
	)
	return m
}

func (m *Metrics) ObservePipeline(result string, seconds float64) {
	if m == nil {
		return
	}
	m.PipelineRuns.WithLabelValues(result).Inc()
	m.PipelineDuration.Observe(seconds)
}

func (m *Metrics) ObservePage(kept, dropped int) {
	if m == nil {
		return
	}
	m.PagesFetched.Inc()
	m.PostsFiltered.WithLabelValues("kept").Add(float64(kept))
	m.PostsFiltered.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *Metrics) ObserveMarket(source, result string) {
	if m == nil {
		return
	}
	m.MarketFetches.WithLabelValues(source, result).Inc()
}

func (m *Metrics) ObserveDelivery(channel, result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) SetAggregatedScore(score float64) {
	if m == nil {
		return
	}
	m.AggregatedScore.Set(score)
}

func (m *Metrics) ObserveRegistration() {
	if m == nil {
		return
	}
	m.Registrations.Inc()
}
