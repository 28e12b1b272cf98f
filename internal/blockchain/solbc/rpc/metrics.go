// internal/blockchain/solbc/rpc/metrics.go
package rpc

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics записывает задержку RPC-запросов; nil *Metrics ничего не пишет.
type Metrics struct {
	rpcLatency *prometheus.HistogramVec
	failovers  *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		rpcLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "candywrapper_rpc_latency_seconds",
			Help:    "RPC request latency by method and result",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		failovers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candywrapper_rpc_failovers_total",
			Help: "Requests retried on another node after a transient error",
		}, []string{"method"}),
	}
}

func (m *Metrics) recordLatency(method string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.rpcLatency.WithLabelValues(method, status).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordFailover(method string) {
	if m == nil {
		return
	}
	m.failovers.WithLabelValues(method).Inc()
}
