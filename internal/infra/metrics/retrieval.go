package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(retrievalLatencyMs, retrievalPassages) }

var (
	retrievalLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "retrieval_latency_ms",
			Help:    "Manual similarity search latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		},
		[]string{"success"},
	)

	retrievalPassages = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "retrieval_passages",
			Help:    "Passages returned per search.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)
)

func ObserveRetrieval(latencyMs int, passages int, success bool) {
	retrievalLatencyMs.WithLabelValues(strconv.FormatBool(success)).Observe(float64(latencyMs))
	if success {
		retrievalPassages.Observe(float64(passages))
	}
}
