package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// Metrics exposes session lifecycle counters. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry setup.
type Metrics struct {
	sessionsActive   prometheus.Gauge
	monitorTicks     prometheus.Counter
	stepFailures     prometheus.Counter
	transitionsTotal *prometheus.CounterVec
}

// NewMetrics registers session metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "strategy_engine",
			Name:      "sessions_active",
			Help:      "Number of sessions currently in the ACTIVE state.",
		}),
		monitorTicks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "strategy_engine",
			Name:      "monitor_ticks_total",
			Help:      "Total monitor polling passes.",
		}),
		stepFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "strategy_engine",
			Name:      "step_failures_total",
			Help:      "Total per-session step failures isolated by the monitor.",
		}),
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strategy_engine",
			Name:      "transitions_total",
			Help:      "Total session state transitions by target state.",
		}, []string{"to"}),
	}
}

// SetActive records the current ACTIVE session count.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.sessionsActive.Set(float64(n))
}

// TickPass increments the monitor pass counter.
func (m *Metrics) TickPass() {
	if m == nil {
		return
	}
	m.monitorTicks.Inc()
}

// StepFailure increments the isolated-failure counter.
func (m *Metrics) StepFailure() {
	if m == nil {
		return
	}
	m.stepFailures.Inc()
}

// Transition records a state transition to the given status.
func (m *Metrics) Transition(to types.SessionStatus) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
}
