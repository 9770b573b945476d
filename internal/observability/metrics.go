package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for sessions, publishing and the HTTP front door.
type Metrics struct {
	registry        *prometheus.Registry
	Sessions        *prometheus.CounterVec
	SessionDuration *prometheus.HistogramVec
	ActiveSessions  *prometheus.GaugeVec
	ToolCalls       *prometheus.CounterVec
	PublishAttempts *prometheus.CounterVec
	PublishedBlocks prometheus.Counter
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with the pipeline collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeflow_sessions_total",
		Help: "Finished sessions by module and terminal status",
	}, []string{"module", "status"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "claudeflow_session_duration_seconds",
		Help:    "Session wall time in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{"module", "status"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "claudeflow_active_sessions",
		Help: "Sessions currently running by module",
	}, []string{"module"})

	tools := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeflow_tool_calls_total",
		Help: "Tool calls observed in session streams by tool and result",
	}, []string{"tool", "result"})

	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeflow_publish_attempts_total",
		Help: "Remote page store calls by operation and result",
	}, []string{"op", "result"})

	published := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "claudeflow_published_blocks_total",
		Help: "Blocks accepted by the page store",
	})

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "claudeflow_http_requests_total",
		Help: "Front door requests by route and status code",
	}, []string{"route", "code"})

	reg.MustRegister(sessions, durs, active, tools, attempts, published, reqs)

	return &Metrics{
		registry:        reg,
		Sessions:        sessions,
		SessionDuration: durs,
		ActiveSessions:  active,
		ToolCalls:       tools,
		PublishAttempts: attempts,
		PublishedBlocks: published,
		HTTPRequests:    reqs,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordSession records a finished session.
func (m *Metrics) RecordSession(module, status string, duration time.Duration) {
	if m == nil {
		return
	}
	module = orUnknown(module)
	status = orUnknown(status)
	m.Sessions.WithLabelValues(module, status).Inc()
	m.SessionDuration.WithLabelValues(module, status).Observe(duration.Seconds())
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(module string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(orUnknown(module)).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(module string) {
	if m == nil {
		return
	}
	m.ActiveSessions.WithLabelValues(orUnknown(module)).Dec()
}

// RecordToolCall counts a completed tool call.
func (m *Metrics) RecordToolCall(tool string, isError bool) {
	if m == nil {
		return
	}
	result := "ok"
	if isError {
		result = "error"
	}
	m.ToolCalls.WithLabelValues(orUnknown(tool), result).Inc()
}

// RecordPublishAttempt counts one remote store call.
func (m *Metrics) RecordPublishAttempt(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.PublishAttempts.WithLabelValues(orUnknown(op), result).Inc()
}

// AddPublishedBlocks adds n accepted blocks.
func (m *Metrics) AddPublishedBlocks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PublishedBlocks.Add(float64(n))
}

// RecordHTTPRequest counts one front door request.
func (m *Metrics) RecordHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(orUnknown(route), strconv.Itoa(code)).Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
