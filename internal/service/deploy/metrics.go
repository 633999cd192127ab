package deploy

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	outcomes      *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "catalyst",
			Subsystem: "deploy",
			Name:      "outcomes_total",
			Help:      "Number of finished deployment pipelines by outcome",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "catalyst",
			Subsystem: "deploy",
			Name:      "stage_duration_seconds",
			Help:      "Duration of deployment pipeline stages",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage", "outcome"}),
	}
	if reg == nil {
		return m
	}
	if err := reg.Register(m.outcomes); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				m.outcomes = existing
			}
		}
	}
	if err := reg.Register(m.stageDuration); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.stageDuration = existing
			}
		}
	}
	return m
}

func (m *metrics) outcome(result string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(result).Inc()
}

func (m *metrics) stage(name, result string, seconds float64) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(name, result).Observe(seconds)
}
