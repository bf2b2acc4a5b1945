package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the runtime
type Metrics struct {
	registry *prometheus.Registry

	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	TurnsPerRun     *prometheus.HistogramVec
	ModelCallsTotal *prometheus.CounterVec

	// Tool metrics
	ToolInvocationsTotal *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec

	// Orchestration metrics
	HandoffsTotal         *prometheus.CounterVec
	ApprovalDecisionTotal *prometheus.CounterVec

	// Capability server metrics
	ServerConnected  *prometheus.GaugeVec
	RemoteCallsTotal *prometheus.CounterVec
}

// New creates and registers all metrics
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_runs_total",
				Help: "Total number of orchestration runs",
			},
			[]string{"agent", "status"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convoy_run_duration_seconds",
				Help:    "Duration of orchestration runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		TurnsPerRun: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convoy_turns_per_run",
				Help:    "Model turns consumed per run",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
			},
			[]string{"agent"},
		),
		ModelCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_model_calls_total",
				Help: "Total number of model backend calls",
			},
			[]string{"provider", "status"},
		),

		ToolInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_tool_invocations_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "convoy_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		HandoffsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_handoffs_total",
				Help: "Total number of agent handoffs",
			},
			[]string{"from", "to", "status"},
		),
		ApprovalDecisionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_approval_decisions_total",
				Help: "Total number of tool approval decisions",
			},
			[]string{"decision"},
		),

		ServerConnected: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "convoy_capability_server_connected",
				Help: "Whether a capability server is currently connected (1) or not (0)",
			},
			[]string{"server"},
		),
		RemoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "convoy_capability_calls_total",
				Help: "Total number of remote tool calls per capability server",
			},
			[]string{"server", "status"},
		),
	}

	registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.TurnsPerRun,
		m.ModelCallsTotal,
		m.ToolInvocationsTotal,
		m.ToolDuration,
		m.HandoffsTotal,
		m.ApprovalDecisionTotal,
		m.ServerConnected,
		m.RemoteCallsTotal,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
