package rpcserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arflow_rpc_duration_seconds",
		Help:    "Dispatch latency per RPC method.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	}, []string{"method", "outcome"})

	decoderSkipTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arflow_decoder_skip_total",
		Help: "Frames skipped because they failed to decode, by kind.",
	}, []string{"kind"})
)

func observeRPC(method string, start time.Time, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	rpcLatency.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
}
