package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful operations.
	OutcomeSuccess = "success"
	// OutcomeError labels failed operations (computation or dependency issues).
	OutcomeError = "error"
	// OutcomeNoData labels operations that completed without usable data.
	OutcomeNoData = "no_data"
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

var (
	reportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "reports_total",
			Help:      "Total number of reliability reports handled, partitioned by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)

	reportDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_reliability",
			Name:      "report_seconds",
			Help:      "Report latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"mode"},
	)

	reportTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "report_tasks_total",
			Help:      "Per-key report tasks executed, partitioned by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "cache_requests_total",
			Help:      "Memoizing cache lookups, partitioned by cache and result.",
		},
		[]string{"cache", "result"},
	)

	cacheLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "cache_loads_total",
			Help:      "Loader invocations, partitioned by cache and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	cacheRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "cache_refreshes_total",
			Help:      "Background refresh-ahead recomputations, partitioned by cache and outcome.",
		},
		[]string{"cache", "outcome"},
	)

	cacheEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "cache_evictions_total",
			Help:      "Entries evicted by size or expiry, partitioned by cache and reason.",
		},
		[]string{"cache", "reason"},
	)

	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_reliability",
			Name:      "backend_requests_total",
			Help:      "Analytics backend calls, partitioned by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	backendDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mirador_reliability",
			Name:      "backend_request_seconds",
			Help:      "Analytics backend call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register attaches mirador-reliability collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		reportsTotal,
		reportDurationSeconds,
		reportTasksTotal,
		cacheRequestsTotal,
		cacheLoadsTotal,
		cacheRefreshesTotal,
		cacheEvictionsTotal,
		backendRequestsTotal,
		backendDurationSeconds,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveReport records a report duration and outcome label.
func ObserveReport(mode string, duration time.Duration, outcome string) {
	reportsTotal.WithLabelValues(mode, normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	reportDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveTask records the outcome of one orchestrator task.
func ObserveTask(kind, outcome string) {
	reportTasksTotal.WithLabelValues(kind, normaliseOutcome(outcome)).Inc()
}

// ObserveCacheRequest records a cache lookup result (hit, miss, stale).
func ObserveCacheRequest(cache, result string) {
	cacheRequestsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveCacheLoad records a loader invocation.
func ObserveCacheLoad(cache, outcome string) {
	cacheLoadsTotal.WithLabelValues(cache, normaliseOutcome(outcome)).Inc()
}

// ObserveCacheRefresh records a background refresh.
func ObserveCacheRefresh(cache, outcome string) {
	cacheRefreshesTotal.WithLabelValues(cache, normaliseOutcome(outcome)).Inc()
}

// ObserveCacheEviction records an eviction ("size", "expired", "invalidated").
func ObserveCacheEviction(cache, reason string) {
	cacheEvictionsTotal.WithLabelValues(cache, reason).Inc()
}

// ObserveBackend records an analytics backend call.
func ObserveBackend(operation string, duration time.Duration, outcome string) {
	backendRequestsTotal.WithLabelValues(operation, normaliseOutcome(outcome)).Inc()
	if duration < 0 {
		duration = 0
	}
	backendDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func normaliseOutcome(outcome string) string {
	switch outcome {
	case OutcomeError, OutcomeNoData:
		return outcome
	default:
		return OutcomeSuccess
	}
}
