// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	submitted         prometheus.Counter
	rebroadcasts      prometheus.Counter
	outcomes          *prometheus.CounterVec
	durationHistogram prometheus.Histogram
}

// NewMetrics registers the sender metrics on registry (prometheus.DefaultRegisterer when nil).
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		submitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "candywrapper_tx_submitted_total",
			Help: "Total number of transactions submitted for the first time",
		}),
		rebroadcasts: factory.NewCounter(prometheus.CounterOpts{
			Name: "candywrapper_tx_rebroadcasts_total",
			Help: "Total number of rebroadcasts of already submitted transactions",
		}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "candywrapper_tx_outcomes_total",
			Help: "Transaction outcomes by status",
		}, []string{"status"}),
		durationHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "candywrapper_tx_confirmation_seconds",
			Help:    "Time from first submission to a settled outcome",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}
}

func (m *Metrics) trackSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) trackRebroadcast() {
	if m == nil {
		return
	}
	m.rebroadcasts.Inc()
}

func (m *Metrics) trackOutcome(status string, start time.Time) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(status).Inc()
	m.durationHistogram.Observe(time.Since(start).Seconds())
}
