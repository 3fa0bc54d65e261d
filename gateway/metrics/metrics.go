package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	HeadBlock     prometheus.Gauge
)

var Registered = false

func RegisterMetrics(namespace string) {
	if Registered {
		return
	}
	Registered = true

	Queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "queries_total",
			Namespace: namespace,
			Subsystem: "gateway",
			Help:      "Number of served state queries.",
		},
		[]string{"method", "outcome"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:      "query_duration_seconds",
			Namespace: namespace,
			Subsystem: "gateway",
			Help:      "Time spent in snapshot resolution and accessor call.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"method"},
	)

	HeadBlock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "head_block",
			Namespace: namespace,
			Subsystem: "gateway",
			Help:      "Last resolved head snapshot.",
		},
	)

	prometheus.MustRegister(Queries)
	prometheus.MustRegister(QueryDuration)
	prometheus.MustRegister(HeadBlock)
}

// ObserveQuery is a no-op until metrics are registered.
func ObserveQuery(method, outcome string, took time.Duration) {
	if !Registered {
		return
	}
	Queries.WithLabelValues(method, outcome).Inc()
	QueryDuration.WithLabelValues(method).Observe(took.Seconds())
}

func SetHead(number uint64) {
	if !Registered {
		return
	}
	HeadBlock.Set(float64(number))
}
