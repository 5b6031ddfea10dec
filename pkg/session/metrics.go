package session

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics метрики менеджера сессий.
// Без Registerer все методы ничего не делают.
type Metrics struct {
	enabled bool

	proposalsTotal   *prometheus.CounterVec
	sessionsStarted  *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	stateTransitions *prometheus.CounterVec
	sessionsActive   prometheus.Gauge
	sessionDuration  prometheus.Histogram
}

// NewMetrics регистрирует метрики в reg (nil отключает сбор)
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	if namespace == "" {
		namespace = "rtc"
	}
	factory := promauto.With(reg)
	const subsystem = "sessions"

	return &Metrics{
		enabled: true,
		proposalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "proposals_total",
			Help:      "Total number of session proposals by kind",
		}, []string{"kind"}),
		sessionsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "started_total",
			Help:      "Total number of sessions that reached the active state",
		}, []string{"kind"}),
		sessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "ended_total",
			Help:      "Total number of ended sessions by kind and reason",
		}, []string{"kind", "reason"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of session errors by code",
		}, []string{"code"}),
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total number of session state transitions",
		}, []string{"from", "to"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active",
			Help:      "Number of sessions in the active map",
		}),
		sessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Duration of sessions from active to ended",
			Buckets:   []float64{1, 5, 15, 30, 60, 180, 600, 1800, 3600},
		}),
	}
}

func (m *Metrics) ProposalReceived(kind Kind) {
	if !m.enabled {
		return
	}
	m.proposalsTotal.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) SessionTracked() {
	if !m.enabled {
		return
	}
	m.sessionsActive.Inc()
}

func (m *Metrics) SessionStarted(kind Kind) {
	if !m.enabled {
		return
	}
	m.sessionsStarted.WithLabelValues(string(kind)).Inc()
}

// SessionEnded учитывает завершение. Нулевой startedAt означает, что сессия не была активна.
func (m *Metrics) SessionEnded(kind Kind, reason string, startedAt time.Time) {
	if !m.enabled {
		return
	}
	m.sessionsEnded.WithLabelValues(string(kind), reason).Inc()
	m.sessionsActive.Dec()
	if !startedAt.IsZero() {
		m.sessionDuration.Observe(time.Since(startedAt).Seconds())
	}
}

func (m *Metrics) Error(code ErrorCode) {
	if !m.enabled {
		return
	}
	m.errorsTotal.WithLabelValues(code.String()).Inc()
}

func (m *Metrics) Transition(from, to State) {
	if !m.enabled {
		return
	}
	m.stateTransitions.WithLabelValues(string(from), string(to)).Inc()
}
