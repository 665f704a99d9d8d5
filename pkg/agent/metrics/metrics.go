package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the agent.
type Metrics struct {
	registry *prometheus.Registry

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	TurnsTotal      *prometheus.CounterVec

	// Follow-up metrics
	FollowUpsScheduled prometheus.Counter
	FollowUpsFired     prometheus.Counter
	FollowUpsCancelled prometheus.Counter

	// Decider metrics
	DeciderErrorsTotal prometheus.Counter
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicedesk"
	}

	registry := prometheus.NewRegistry()

	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	toolCallDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool execution duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"tool"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active room sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of room sessions",
		},
		[]string{"status"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversation turns by trigger event",
		},
		[]string{"event"},
	)

	followUpsScheduled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_ups_scheduled_total",
			Help:      "Total follow-ups scheduled",
		},
	)

	followUpsFired := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_ups_fired_total",
			Help:      "Total follow-ups fired",
		},
	)

	followUpsCancelled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_ups_cancelled_total",
			Help:      "Total follow-ups cancelled before firing",
		},
	)

	deciderErrorsTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decider_errors_total",
			Help:      "Total failures reaching the decision capability",
		},
	)

	registry.MustRegister(
		toolCallsTotal,
		toolCallDuration,
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		followUpsScheduled,
		followUpsFired,
		followUpsCancelled,
		deciderErrorsTotal,
	)

	return &Metrics{
		registry:           registry,
		ToolCallsTotal:     toolCallsTotal,
		ToolCallDuration:   toolCallDuration,
		SessionsActive:     sessionsActive,
		SessionsTotal:      sessionsTotal,
		SessionDuration:    sessionDuration,
		TurnsTotal:         turnsTotal,
		FollowUpsScheduled: followUpsScheduled,
		FollowUpsFired:     followUpsFired,
		FollowUpsCancelled: followUpsCancelled,
		DeciderErrorsTotal: deciderErrorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordToolCall records a completed tool invocation.
func (m *Metrics) RecordToolCall(tool, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ToolCallsTotal.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending.
func (m *Metrics) RecordSessionEnd(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordTurn records one dispatched conversation turn.
func (m *Metrics) RecordTurn(event string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(event).Inc()
}

// RecordFollowUpScheduled records a follow-up being scheduled.
func (m *Metrics) RecordFollowUpScheduled() {
	if m == nil {
		return
	}
	m.FollowUpsScheduled.Inc()
}

// RecordFollowUpFired records a follow-up timer firing.
func (m *Metrics) RecordFollowUpFired() {
	if m == nil {
		return
	}
	m.FollowUpsFired.Inc()
}

// RecordFollowUpsCancelled records follow-ups cancelled before they fired.
func (m *Metrics) RecordFollowUpsCancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FollowUpsCancelled.Add(float64(n))
}

// RecordDeciderError records a failure to reach the decision capability.
func (m *Metrics) RecordDeciderError() {
	if m == nil {
		return
	}
	m.DeciderErrorsTotal.Inc()
}
