package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kinobot",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	SearchRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "search_requests_total",
		Help:      "Catalog searches by matching mode (empty, short, fuzzy).",
	}, []string{"mode"})

	SearchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kinobot",
		Name:      "search_duration_seconds",
		Help:      "Time spent ranking one query.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
	})

	SearchFallbackTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "search_fallback_total",
		Help:      "Searches that fell back to the recent-entries pool.",
	})

	SeriesRerankTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "search_series_rerank_total",
		Help:      "Result lists reordered by season and episode.",
	})

	ResultCacheOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "result_cache_ops_total",
		Help:      "Result cache operations by operation and outcome.",
	}, []string{"op", "status"})

	ResultCacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kinobot",
		Name:      "result_cache_entries",
		Help:      "Live result sets held by the in-memory cache.",
	})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "deliveries_total",
		Help:      "Delivery attempts by outcome.",
	}, []string{"outcome"})

	SelfDestructTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "self_destruct_total",
		Help:      "Finished self-destruct jobs by terminal state.",
	}, []string{"outcome"})

	SelfDestructPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "kinobot",
		Name:      "self_destruct_pending",
		Help:      "Self-destruct jobs waiting for their deadline.",
	})

	TransportRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kinobot",
		Name:      "transport_requests_total",
		Help:      "Bot API calls by method and result status.",
	}, []string{"method", "status"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		SearchRequestsTotal,
		SearchDuration,
		SearchFallbackTotal,
		SeriesRerankTotal,
		ResultCacheOpsTotal,
		ResultCacheEntries,
		DeliveriesTotal,
		SelfDestructTotal,
		SelfDestructPending,
		TransportRequestsTotal,
	)
}
