package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting application metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Message flow by platform and direction
//   - Reasoning engine request performance and token usage
//   - Security check outcomes and pipeline blocks
//   - Action executions by intent
//   - RPC and HTTP request rates
//   - Active session counts
type Metrics struct {
	// MessageCounter tracks messages by platform and direction.
	// Labels: platform (web|api), direction (inbound|outbound)
	MessageCounter *prometheus.CounterVec

	// EngineRequestDuration measures reasoning engine call latency in seconds.
	// Labels: provider (anthropic|openai), model
	EngineRequestDuration *prometheus.HistogramVec

	// EngineRequestCounter counts engine requests.
	// Labels: provider, model, status (success|error)
	EngineRequestCounter *prometheus.CounterVec

	// EngineTokensUsed tracks token consumption.
	// Labels: provider, model, type (prompt|completion)
	EngineTokensUsed *prometheus.CounterVec

	// SecurityCheckCounter counts security check evaluations.
	// Labels: check, outcome (clear|warn|block)
	SecurityCheckCounter *prometheus.CounterVec

	// SecurityBlockCounter counts pipeline blocks by the check that fired.
	// Labels: check
	SecurityBlockCounter *prometheus.CounterVec

	// ActionCounter counts action executions.
	// Labels: intent, status (success|failure|blocked)
	ActionCounter *prometheus.CounterVec

	// ActionDuration measures action execution time in seconds.
	// Labels: intent
	ActionDuration *prometheus.HistogramVec

	// RPCRequestCounter counts JSON-RPC requests.
	// Labels: method, status (ok|error)
	RPCRequestCounter *prometheus.CounterVec

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (agent|engine|rpc|sessions), error_type
	ErrorCounter *prometheus.CounterVec

	// ActiveSessions is a gauge tracking current active sessions.
	// Labels: platform
	ActiveSessions *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics.
// This should be called once at application startup.
func NewMetrics() *Metrics {
	return &Metrics{
		MessageCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_messages_total",
				Help: "Total number of messages processed by platform and direction",
			},
			[]string{"platform", "direction"},
		),

		EngineRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultline_engine_request_duration_seconds",
				Help:    "Duration of reasoning engine requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),

		EngineRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_engine_requests_total",
				Help: "Total number of reasoning engine requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),

		EngineTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_engine_tokens_total",
				Help: "Total number of tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),

		SecurityCheckCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_security_checks_total",
				Help: "Total number of security check evaluations by check and outcome",
			},
			[]string{"check", "outcome"},
		),

		SecurityBlockCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_security_blocks_total",
				Help: "Total number of pipeline blocks by the check that fired",
			},
			[]string{"check"},
		),

		ActionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_actions_total",
				Help: "Total number of action executions by intent and status",
			},
			[]string{"intent", "status"},
		),

		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "vaultline_action_duration_seconds",
				Help:    "Duration of action executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"intent"},
		),

		RPCRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_rpc_requests_total",
				Help: "Total number of JSON-RPC requests by method and status",
			},
			[]string{"method", "status"},
		),

		ErrorCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vaultline_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),

		ActiveSessions: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vaultline_active_sessions",
				Help: "Current number of active sessions by platform",
			},
			[]string{"platform"},
		),
	}
}

// MessageReceived increments the message counter for inbound messages.
func (m *Metrics) MessageReceived(platform string) {
	m.MessageCounter.WithLabelValues(platform, "inbound").Inc()
}

// MessageSent increments the message counter for outbound messages.
func (m *Metrics) MessageSent(platform string) {
	m.MessageCounter.WithLabelValues(platform, "outbound").Inc()
}

// RecordEngineRequest records metrics for one reasoning engine call.
func (m *Metrics) RecordEngineRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.EngineRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.EngineRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.EngineTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.EngineTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordSecurityCheck records the outcome of one check evaluation.
func (m *Metrics) RecordSecurityCheck(check, outcome string) {
	m.SecurityCheckCounter.WithLabelValues(check, outcome).Inc()
}

// RecordSecurityBlock records a pipeline block attributed to a check.
func (m *Metrics) RecordSecurityBlock(check string) {
	m.SecurityBlockCounter.WithLabelValues(check).Inc()
}

// RecordAction records one action execution.
func (m *Metrics) RecordAction(intent, status string, durationSeconds float64) {
	m.ActionCounter.WithLabelValues(intent, status).Inc()
	m.ActionDuration.WithLabelValues(intent).Observe(durationSeconds)
}

// RecordRPCRequest records one JSON-RPC request.
func (m *Metrics) RecordRPCRequest(method, status string) {
	m.RPCRequestCounter.WithLabelValues(method, status).Inc()
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active sessions gauge.
func (m *Metrics) SessionStarted(platform string) {
	m.ActiveSessions.WithLabelValues(platform).Inc()
}

// SessionEnded decrements the active sessions gauge.
func (m *Metrics) SessionEnded(platform string) {
	m.ActiveSessions.WithLabelValues(platform).Dec()
}
