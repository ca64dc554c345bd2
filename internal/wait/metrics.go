package wait

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks engine activity for the /metrics endpoint.
type Metrics struct {
	activeJobs     prometheus.Gauge
	evaluations    *prometheus.CounterVec
	terminals      *prometheus.CounterVec
	visionDuration prometheus.Histogram
	wakeFailures   prometheus.Counter
}

// NewMetrics registers the engine metrics on reg (the default registerer when
// nil) under the smartwait namespace.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		activeJobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smartwait",
			Name:      "active_jobs",
			Help:      "Number of wait jobs currently watching",
		}),
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartwait",
			Name:      "evaluations_total",
			Help:      "Evaluation cycles by outcome",
		}, []string{"outcome"}),
		terminals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smartwait",
			Name:      "terminal_transitions_total",
			Help:      "Terminal transitions by final status",
		}, []string{"status"}),
		visionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smartwait",
			Name:      "vision_call_duration_seconds",
			Help:      "Duration of vision model calls",
			Buckets:   []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		}),
		wakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smartwait",
			Name:      "wake_failures_total",
			Help:      "Wake notifications that failed or timed out",
		}),
	}

	reg.MustRegister(m.activeJobs, m.evaluations, m.terminals, m.visionDuration, m.wakeFailures)
	return m
}

func (m *Metrics) setActive(n int) {
	m.activeJobs.Set(float64(n))
}

func (m *Metrics) recordEvaluation(outcome string) {
	m.evaluations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordTerminal(status Status) {
	m.terminals.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) observeVision(d time.Duration) {
	m.visionDuration.Observe(d.Seconds())
}

func (m *Metrics) recordWakeFailure() {
	m.wakeFailures.Inc()
}
