// Package metrics exposes the Prometheus instrumentation for the agent
// runtime: turn lifecycle, tool executions, LLM usage and session counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the central collector set. Create one per process with New
// and share it across the conductor, reasoner and usage recorder.
type Metrics struct {
	// TurnCounter counts agent turns by final status.
	// Labels: status (completed|failed|cancelled)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	// Buckets: 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s
	TurnDuration prometheus.Histogram

	// TurnIterations measures reasoning iterations consumed per turn.
	TurnIterations prometheus.Histogram

	// ToolExecutionCounter counts supervised tool invocations.
	// Labels: tool_name, status (success|error|timeout|cancelled)
	ToolExecutionCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution time in seconds.
	// Labels: tool_name
	ToolExecutionDuration *prometheus.HistogramVec

	// LLMRequestCounter counts LLM calls by operation and status.
	// Labels: operation (planning|reasoning|answer|memory), status
	LLMRequestCounter *prometheus.CounterVec

	// LLMTokensUsed tracks token consumption.
	// Labels: type (prompt|completion)
	LLMTokensUsed *prometheus.CounterVec

	// UsageRecordsDropped counts accounting records discarded because the
	// recorder buffer was full.
	UsageRecordsDropped prometheus.Counter

	// ActiveSessions is the number of live websocket sessions.
	ActiveSessions prometheus.Gauge

	// ErrorCounter tracks errors by component and error type.
	// Labels: component (conductor|reasoner|memory|store), error_type
	ErrorCounter *prometheus.CounterVec
}

// New creates the collector set and registers it with reg. Pass
// prometheus.DefaultRegisterer at startup, or a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesense_turns_total",
				Help: "Total number of agent turns by final status",
			},
			[]string{"status"},
		),

		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagesense_turn_duration_seconds",
				Help:    "End-to-end agent turn duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		),

		TurnIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagesense_turn_iterations",
				Help:    "Reasoning iterations consumed per turn",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 7, 8},
			},
		),

		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesense_tool_executions_total",
				Help: "Total number of tool executions by tool name and status",
			},
			[]string{"tool_name", "status"},
		),

		ToolExecutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pagesense_tool_execution_duration_seconds",
				Help:    "Duration of tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),

		LLMRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesense_llm_requests_total",
				Help: "Total number of LLM requests by operation and status",
			},
			[]string{"operation", "status"},
		),

		LLMTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesense_llm_tokens_total",
				Help: "Total number of LLM tokens by type",
			},
			[]string{"type"},
		),

		UsageRecordsDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "pagesense_usage_records_dropped_total",
				Help: "Usage accounting records discarded due to a full buffer",
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pagesense_active_sessions",
				Help: "Current number of live websocket sessions",
			},
		),

		ErrorCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagesense_errors_total",
				Help: "Total number of errors by component and error type",
			},
			[]string{"component", "error_type"},
		),
	}
}

// NewNop returns a collector set backed by an unexported registry. Use it
// where instrumentation is not under test.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

// RecordTurn records the outcome of a completed, failed or cancelled turn.
func (m *Metrics) RecordTurn(status string, durationSeconds float64, iterations int) {
	m.TurnCounter.WithLabelValues(status).Inc()
	m.TurnDuration.Observe(durationSeconds)
	m.TurnIterations.Observe(float64(iterations))
}

// RecordToolExecution records one supervised tool invocation.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordLLMRequest records one model call with its token usage.
func (m *Metrics) RecordLLMRequest(operation, status string, promptTokens, completionTokens int) {
	m.LLMRequestCounter.WithLabelValues(operation, status).Inc()
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues("prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues("completion").Add(float64(completionTokens))
	}
}

// RecordError increments the error counter for a component and error type.
func (m *Metrics) RecordError(component, errorType string) {
	m.ErrorCounter.WithLabelValues(component, errorType).Inc()
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}
