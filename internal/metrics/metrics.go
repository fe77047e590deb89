package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackmirror",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trackmirror",
			Name:      "sync_runs_total",
			Help:      "Completed sync runs by outcome.",
		},
		[]string{"status", "trigger"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "trackmirror",
			Name:      "sync_duration_seconds",
			Help:      "Wall-clock duration of sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	itemsSynced = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackmirror",
			Name:      "items_synced",
			Help:      "Items written to the replica by the last sync run.",
		},
	)

	itemsFailed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackmirror",
			Name:      "items_failed",
			Help:      "Items that failed to transform in the last sync run.",
		},
	)

	upstreamRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackmirror",
			Name:      "upstream_requests_total",
			Help:      "Calls issued to the upstream API, including retries.",
		},
	)

	rateLimitRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "trackmirror",
			Name:      "upstream_rate_limit_remaining",
			Help:      "Remaining upstream quota reported by the last response.",
		},
	)

	upstreamRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackmirror",
			Name:      "upstream_retries_total",
			Help:      "Upstream calls retried after a transient failure.",
		},
	)

	rateLimitWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "trackmirror",
			Name:      "rate_limit_waits_total",
			Help:      "Times the sync paused waiting for the upstream quota window.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			syncRuns,
			syncDuration,
			itemsSynced,
			itemsFailed,
			upstreamRequests,
			rateLimitRemaining,
			upstreamRetries,
			rateLimitWaits,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveSyncRun records the outcome of a completed sync run.
func ObserveSyncRun(status, trigger string, durationMs int64, synced, failed int) {
	syncRuns.WithLabelValues(status, trigger).Inc()
	syncDuration.Observe(float64(durationMs) / 1000)
	itemsSynced.Set(float64(synced))
	itemsFailed.Set(float64(failed))
}

// IncUpstreamRequest counts one call issued to the upstream API.
func IncUpstreamRequest() {
	upstreamRequests.Inc()
}

// SetRateLimitRemaining publishes the latest upstream quota headroom.
func SetRateLimitRemaining(remaining int) {
	rateLimitRemaining.Set(float64(remaining))
}

// IncRetry counts one retried upstream call.
func IncRetry() {
	upstreamRetries.Inc()
}

// IncRateLimitWait counts one quota-window pause.
func IncRateLimitWait() {
	rateLimitWaits.Inc()
}
