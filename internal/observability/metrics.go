package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the daemon-wide Prometheus registry, exposed on the gateway's
// loopback /metrics endpoint alongside the HTTP panel (SPEC_FULL §10).
type Metrics struct {
	Registry *prometheus.Registry

	SessionRounds      *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec
	ProviderErrors     *prometheus.CounterVec
	CostLedgerUsd      *prometheus.GaugeVec
	HeartbeatTicks     prometheus.Counter
	CronFires          *prometheus.CounterVec
	ToolExecutions     *prometheus.CounterVec
	GatewayHTTPRequests *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics instance.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		SessionRounds: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "session_rounds_total",
			Help: "Tool-use loop rounds executed, by role.",
		}, []string{"role"}),
		ProviderLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sentineld", Name: "provider_chat_latency_seconds",
			Help:    "Latency of provider chat/stream calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "dialect"}),
		ProviderErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "provider_errors_total",
			Help: "Provider wire errors, by provider and kind.",
		}, []string{"provider", "kind"}),
		CostLedgerUsd: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sentineld", Name: "cost_ledger_usd_today",
			Help: "Today's cumulative spend in USD, by role.",
		}, []string{"role"}),
		HeartbeatTicks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "heartbeat_ticks_total",
			Help: "Completed heartbeat ticks.",
		}),
		CronFires: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "cron_fires_total",
			Help: "Cron job fires, by job id.",
		}, []string{"job_id"}),
		ToolExecutions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "tool_executions_total",
			Help: "Tool executions, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		GatewayHTTPRequests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "sentineld", Name: "gateway_http_requests_total",
			Help: "HTTP panel requests, by route and status class.",
		}, []string{"route", "status"}),
	}
	return m
}
