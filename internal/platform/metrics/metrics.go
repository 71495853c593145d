// Package metrics exposes prometheus instruments for the validation pipeline.
// Registration uses the default registerer; exposition is the embedder's concern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DBQueries counts backend query completions by backend and terminal status
	DBQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refguard_db_queries_total",
		Help: "Backend query completions by backend name and status",
	}, []string{"db", "status"})

	// DBQuerySeconds observes the HTTP round-trip time, measured after the rate limiter
	DBQuerySeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "refguard_db_query_seconds",
		Help:    "Backend query latency excluding rate limiter queue wait",
		Buckets: prometheus.DefBuckets,
	}, []string{"db"})

	// RateLimited counts 429 responses by backend
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refguard_rate_limited_total",
		Help: "429 responses received by backend name",
	}, []string{"db"})

	// CacheRequests counts cache lookups by tier and outcome (hit|miss)
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refguard_cache_requests_total",
		Help: "Query cache lookups by tier and result",
	}, []string{"tier", "result"})

	// RetryPasses counts retry passes started
	RetryPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "refguard_retry_passes_total",
		Help: "Retry passes run against previously failed backends",
	})

	// ReferencesChecked counts terminal verdicts by status
	ReferencesChecked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "refguard_references_checked_total",
		Help: "References validated by terminal status",
	}, []string{"status"})
)
