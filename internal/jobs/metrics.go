package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the scheduler's prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	dispatched prometheus.Counter
	executions *prometheus.CounterVec
	recovered  prometheus.Counter
	evicted    prometheus.Counter
	inFlight   prometheus.Gauge
	duration   prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "dispatched_total",
			Help:      "Jobs handed to the executor.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "executions_total",
			Help:      "Finished executions by outcome.",
		}, []string{"outcome"}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "recovered_total",
			Help:      "Stale running jobs reset to scheduled.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "tracker_evicted_total",
			Help:      "Stale in-memory reservations dropped.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "in_flight",
			Help:      "Executions currently running in this process.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "scheduler",
			Name:      "execution_duration_seconds",
			Help:      "Workload processing time.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(m.dispatched, m.executions, m.recovered, m.evicted, m.inFlight, m.duration)
	return m
}

func (m *Metrics) Dispatched() {
	if m == nil {
		return
	}
	m.dispatched.Inc()
	m.inFlight.Inc()
}

func (m *Metrics) Finished(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(outcome).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) Released() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

func (m *Metrics) Recovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recovered.Add(float64(n))
}

func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}
