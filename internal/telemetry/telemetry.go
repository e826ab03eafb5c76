// Package telemetry exposes Prometheus collectors for the sync pipeline.
package telemetry

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal   *prometheus.CounterVec
	fetchFailuresTotal  *prometheus.CounterVec
	parseFailuresTotal  *prometheus.CounterVec
	resolveOutcomes     *prometheus.CounterVec
	proxyBlacklistTotal prometheus.Counter
	rateLimitDelay      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfsync_pages_fetched_total",
				Help: "Pages retrieved, labeled by entity kind and origin (cache or network).",
			},
			[]string{"kind", "origin"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfsync_fetch_failures_total",
				Help: "Terminal fetch failures, labeled by entity kind and failure kind.",
			},
			[]string{"kind", "reason"},
		)

		parseFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfsync_parse_failures_total",
				Help: "Parser failures, labeled by entity kind and reason.",
			},
			[]string{"kind", "reason"},
		)

		resolveOutcomes = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shelfsync_resolve_outcomes_total",
				Help: "Resolution outcomes, labeled by entity kind and status.",
			},
			[]string{"kind", "status"},
		)

		proxyBlacklistTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "shelfsync_proxy_blacklisted_total",
				Help: "Times a proxy record entered its blacklist cooldown.",
			},
		)

		rateLimitDelay = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shelfsync_rate_limit_delay_seconds",
				Help:    "Delay introduced by the per-host rate limiter.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// ObservePageFetched counts one retrieved page.
func ObservePageFetched(kind, origin string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(kind, origin).Inc()
	}
}

// ObserveFetchFailure counts one terminal fetch failure.
func ObserveFetchFailure(kind, reason string) {
	if fetchFailuresTotal != nil {
		fetchFailuresTotal.WithLabelValues(kind, reason).Inc()
	}
}

// ObserveParseFailure counts one parser failure.
func ObserveParseFailure(kind, reason string) {
	if parseFailuresTotal != nil {
		parseFailuresTotal.WithLabelValues(kind, reason).Inc()
	}
}

// ObserveResolveOutcome counts one resolution outcome.
func ObserveResolveOutcome(kind, status string) {
	if resolveOutcomes != nil {
		resolveOutcomes.WithLabelValues(kind, status).Inc()
	}
}

// ObserveProxyBlacklisted counts one blacklist event.
func ObserveProxyBlacklisted() {
	if proxyBlacklistTotal != nil {
		proxyBlacklistTotal.Inc()
	}
}

// ObserveRateLimitDelay records time spent waiting on the per-host limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	if rateLimitDelay != nil {
		rateLimitDelay.WithLabelValues(host).Observe(d.Seconds())
	}
}
