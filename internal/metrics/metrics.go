// Package metrics defines the Prometheus instruments of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pantrychef"

// Metrics groups every collector. Build it with New and share one instance.
type Metrics struct {
	Searches          *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	GenerationCalls   *prometheus.CounterVec
	Fallbacks         prometheus.Counter
	BudgetRejections  prometheus.Counter
	SearchLogFailures prometheus.Counter
	BreakerState      *prometheus.GaugeVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_total",
			Help:      "Searches by outcome (ok, invalid, failed).",
		}, []string{"outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cache_hits_total",
			Help:      "Generated recipe sets served from the cache.",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_cache_misses_total",
			Help:      "Cache lookups that found nothing.",
		}),
		GenerationCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_calls_total",
			Help:      "Calls to the generative backend by result (success, parse_error, unavailable).",
		}, []string{"result"}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_fallbacks_total",
			Help:      "Searches answered with synthesized fallback recipes.",
		}),
		BudgetRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_budget_rejections_total",
			Help:      "Generation attempts skipped because the rate budget was exhausted.",
		}),
		SearchLogFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_log_failures_total",
			Help:      "Search log rows that could not be written.",
		}),
		BreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		}, []string{"name"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNop returns metrics registered with a private registry, for tests and tools.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
