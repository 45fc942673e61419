package usage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerPagesFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "provider_pages_fetched_total",
			Help: "Total number of conversation pages fetched from the call-log provider",
		},
	)

	usageCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "usage_cache_hits_total",
			Help: "Total number of usage window summaries served from cache",
		},
	)
)
