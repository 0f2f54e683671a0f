package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyonboard_rpc_calls_total",
		Help: "Read-only RPC calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	RPCExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyonboard_rpc_exhausted_total",
		Help: "Reads that failed on every configured endpoint",
	})

	RelayerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyonboard_relayer_jobs_total",
		Help: "Relayer jobs by kind and terminal outcome",
	}, []string{"kind", "outcome"})

	RelayerPolls = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyonboard_relayer_polls",
		Help:    "Number of status polls until a relayer job settled or gave up",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyonboard_orders_total",
		Help: "The total number of orders processed",
	}, []string{"status", "side"})

	CredentialResets = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polyonboard_credential_resets_total",
		Help: "Trading credential resets issued",
	})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "polyonboard_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
