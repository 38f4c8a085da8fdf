package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ResolveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_resolve_requests_total",
		Help: "The total number of resolve calls by final result",
	}, []string{"result"})

	ResolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gnews_resolve_duration_seconds",
		Help:    "Duration of resolve calls including cache lookups",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	})

	StrategyAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_strategy_attempts_total",
		Help: "The total number of strategy attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})

	StrategyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_strategy_errors_total",
		Help: "Strategy failures by strategy and error kind",
	}, []string{"strategy", "kind"})

	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_cache_lookups_total",
		Help: "Result cache lookups by outcome",
	}, []string{"backend", "outcome"})

	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_cache_evictions_total",
		Help: "Result cache entries removed by reason",
	}, []string{"backend", "reason"})

	CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gnews_cache_entries",
		Help: "Current number of entries in the result cache",
	}, []string{"backend"})

	CacheFlushErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_cache_flush_errors_total",
		Help: "Failed writes of the result cache to durable storage",
	}, []string{"backend"})

	FeedItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_feed_items_processed_total",
		Help: "Feed items seen by the feed processor by outcome",
	}, []string{"source", "outcome"})

	FeedFetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gnews_feed_fetch_errors_total",
		Help: "Feed fetch or parse failures by source",
	}, []string{"source"})
)
