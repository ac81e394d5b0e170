package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, invalidationFailuresTotal) }

var (
	cacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Tracks cache hits and misses for various caches.",
		},
		[]string{"cache", "result"}, // e.g., cache="balance", result="hit"
	)

	invalidationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_cache_invalidation_failures_total",
			Help: "Post-commit invalidation calls that failed, by backend.",
		},
		[]string{"backend"}, // redis | rabbitmq
	)
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncInvalidationFailure(backend string) {
	invalidationFailuresTotal.WithLabelValues(norm(backend)).Inc()
}
