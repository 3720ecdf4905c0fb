// Package metrics exposes Prometheus instrumentation for the engine.
// All collectors are registered at import time via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_sessions_started_total",
			Help: "Total number of executor sessions started",
		},
		[]string{"pattern"},
	)

	SessionsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_sessions_completed_total",
			Help: "Total number of executor sessions finished",
		},
		[]string{"pattern", "status"},
	)

	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "praxis_session_duration_seconds",
			Help:    "Executor session duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pattern"},
	)

	SessionIterations = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "praxis_session_iterations",
			Help:    "Reasoning iterations per session",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	SessionTokensUsed = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "praxis_session_tokens_used",
			Help:    "Tokens consumed per session",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
		},
	)

	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_tool_executions_total",
			Help: "Total number of tool executions",
		},
		[]string{"tool", "status"},
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "praxis_tool_execution_duration_ms",
			Help:    "Tool execution duration in milliseconds",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
		},
		[]string{"tool"},
	)

	SandboxViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_sandbox_violations_total",
			Help: "Paths rejected by the sandbox before any I/O",
		},
	)

	// LLM metrics
	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_llm_requests_total",
			Help: "Total number of LLM completion requests",
		},
		[]string{"model", "status"},
	)

	LLMRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_llm_retries_total",
			Help: "LLM completion attempts beyond the first",
		},
	)

	LLMTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_llm_tokens_total",
			Help: "Tokens reported by the LLM provider",
		},
		[]string{"model"},
	)

	// Unit-of-work metrics
	GateChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_gate_checks_total",
			Help: "Compliance gate evaluations by result",
		},
		[]string{"from", "to", "result"},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "praxis_phase_transitions_total",
			Help: "Persisted unit-of-work phase transitions",
		},
		[]string{"from", "to"},
	)

	// Session archive metrics
	ArchivedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "praxis_archived_sessions_total",
			Help: "Completed sessions written to the session store",
		},
	)

	SessionCacheSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "praxis_session_cache_size",
			Help: "Entries in the local session cache",
		},
	)
)
