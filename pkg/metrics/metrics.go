package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK           = "ok"
	OutcomeHTTPError    = "http_error"
	OutcomeParseError   = "parse_error"
	OutcomeNetworkError = "network_error"
)

const (
	RefreshAggregated = "aggregated"
	RefreshShared     = "shared"
	RefreshError      = "error"
)

var (
	upstreamFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_upstream_fetch_total",
			Help: "Upstream departure fetches by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	upstreamFetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "transit_upstream_fetch_duration_seconds",
			Help:    "Upstream departure fetch duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_cache_requests_total",
			Help: "Snapshot cache reads by result.",
		},
		[]string{"result"},
	)

	cacheRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transit_cache_refresh_total",
			Help: "Snapshot cache refreshes by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(upstreamFetchTotal)
	prometheus.MustRegister(upstreamFetchDurationSeconds)
	prometheus.MustRegister(cacheRequestsTotal)
	prometheus.MustRegister(cacheRefreshTotal)
}

// ObserveUpstreamFetch records one fetch attempt against an upstream source.
func ObserveUpstreamFetch(source string, outcome string, duration time.Duration) {
	upstreamFetchTotal.WithLabelValues(source, outcome).Inc()
	upstreamFetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

func IncCacheHits() {
	cacheRequestsTotal.WithLabelValues("hit").Inc()
}

func IncCacheMisses() {
	cacheRequestsTotal.WithLabelValues("miss").Inc()
}

func IncCacheRefresh(result string) {
	cacheRefreshTotal.WithLabelValues(result).Inc()
}
