// Package metrics holds the Prometheus collectors of the discovery pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "discovery"

// Metrics groups every collector. Components take a *Metrics; a nil value
// is replaced by Discard().
type Metrics struct {
	MergedEmissions   prometheus.Counter
	MergedSuppressed  prometheus.Counter
	ActiveLists       prometheus.Gauge
	SortFallbacks     prometheus.Counter
	Fetches           prometheus.Counter
	FetchesShared     prometheus.Counter
	StaleDiscards     prometheus.Counter
	Failures          *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	ConfigCacheHits   prometheus.Counter
	ConfigCacheMisses prometheus.Counter
	Sessions          prometheus.Gauge
	SearchesRecorded  prometheus.Counter
	HTTPRequests      *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MergedEmissions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merger",
			Name:      "emissions_total",
			Help:      "Merged search options emitted to subscribers",
		}),
		MergedSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merger",
			Name:      "suppressed_total",
			Help:      "Parameter ticks that left the merged options unchanged",
		}),
		ActiveLists: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "merger",
			Name:      "active_lists",
			Help:      "Pagination ids with a live merge node",
		}),
		SortFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "merger",
			Name:      "sort_fallbacks_total",
			Help:      "Sorts replaced by the configuration's first sort option",
		}),
		Fetches: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "fetches_total",
			Help:      "Retrievals issued to the discovery API",
		}),
		FetchesShared: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "shared_total",
			Help:      "Retrievals served by an in-flight request for the same options",
		}),
		StaleDiscards: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "stale_discards_total",
			Help:      "Responses dropped because newer options were issued",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "failures_total",
			Help:      "Retrievals that settled as failures, by status code",
		}, []string{"code"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "duration_seconds",
			Help:      "Time from issue to settle of a retrieval",
			Buckets:   prometheus.DefBuckets,
		}),
		ConfigCacheHits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config_cache",
			Name:      "hits_total",
			Help:      "Search configuration lookups served from cache",
		}),
		ConfigCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config_cache",
			Name:      "misses_total",
			Help:      "Search configuration lookups that reached the API",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "sessions",
			Help:      "Open pipeline sessions",
		}),
		SearchesRecorded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stats",
			Name:      "searches_recorded_total",
			Help:      "Search-performed events written to the search log",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route pattern and status code",
		}, []string{"route", "code"}),
	}
}

// Discard returns collectors registered on a private registry that nobody
// scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// OrDiscard returns m, or Discard() when m is nil.
func OrDiscard(m *Metrics) *Metrics {
	if m == nil {
		return Discard()
	}
	return m
}
