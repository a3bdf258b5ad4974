package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricNodeRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "node_request_total",
		Help:      "Total number of requests forwarded to nodes.",
	}, []string{"node", "method"})

	MetricNodeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "rpcmux",
		Name:      "node_request_duration_seconds",
		Help:      "Duration of requests forwarded to nodes.",
		Buckets: []float64{
			0.005, // 5 ms
			0.01,  // 10 ms
			0.025, // 25 ms
			0.05,  // 50 ms
			0.1,   // 100 ms
			0.25,  // 250 ms
			0.5,   // 500 ms
			1,     // 1 s
			2.5,   // 2.5 s
			5,     // 5 s
			10,    // 10 s
			30,    // 30 s
		},
	}, []string{"node"})

	MetricNodeErrorTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "node_request_errors_total",
		Help:      "Total number of transport/timeout failures towards nodes.",
	}, []string{"node", "method", "error"})

	MetricNodeHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rpcmux",
		Name:      "node_health_state",
		Help:      "Current node health state (0=healthy 1=degraded 2=unhealthy).",
	}, []string{"node"})

	MetricNodeLatestHeight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rpcmux",
		Name:      "node_latest_block_height",
		Help:      "Highest block number observed from this node.",
	}, []string{"node"})

	MetricNodeHeadLag = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rpcmux",
		Name:      "node_block_head_lag",
		Help:      "Number of blocks this node is behind the best known head.",
	}, []string{"node"})

	MetricNodeInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rpcmux",
		Name:      "node_in_flight_requests",
		Help:      "Number of requests currently outstanding towards this node.",
	}, []string{"node"})

	MetricProbeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "probe_total",
		Help:      "Total number of active health probes sent to nodes.",
	}, []string{"node", "outcome"})

	MetricCacheHitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "cache_hit_total",
		Help:      "Total number of requests served from the response cache.",
	}, []string{"method"})

	MetricCacheMissTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "cache_miss_total",
		Help:      "Total number of cache-eligible requests not found in the cache.",
	}, []string{"method"})

	MetricCacheEvictionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "cache_eviction_total",
		Help:      "Total number of cache entries evicted due to capacity.",
	})

	MetricAdmissionRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "admission_rejected_total",
		Help:      "Total number of requests rejected by the admission controller.",
	}, []string{"scope"})

	MetricRequestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rpcmux",
		Name:      "request_total",
		Help:      "Total number of client requests by final outcome.",
	}, []string{"method", "outcome"})
)
