package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cpupower_helper_rpc_calls_total",
			Help: "Helper RPC calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	rpcLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cpupower_helper_rpc_duration_seconds",
			Help:    "Time spent handling helper RPC calls, including authorization prompts",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.25, 1, 5, 30, 120},
		},
		[]string{"method"},
	)

	rpcInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cpupower_helper_rpc_waiting",
			Help: "RPC calls waiting for or holding the call lock",
		},
	)
)
