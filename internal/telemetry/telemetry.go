// Package telemetry wires the dispatch engine's metric events into
// Prometheus. Unlike the teacher's internal/metrics package, which installs
// its collectors as package-level promauto vars on a process-global
// registry, this package's Metrics is constructed explicitly and registered
// against a caller-supplied prometheus.Registerer (the Manager builder
// accepts one, defaulting to prometheus.DefaultRegisterer) so a process can
// host more than one Manager without metric name collisions, and so tests can
// use an isolated registry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "relaygrid"

// durationBuckets mirrors the teacher's internal/metrics.LatencyBuckets,
// trimmed to the range this engine's HTTP calls actually occupy.
var durationBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 60, 120,
}

// Metrics bundles every collector the dispatch engine emits to. Labels
// throughout are provider, model, task (falling back to "default" when the
// request named none) and, for errors, error_type.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec
	ErrorsTotal    *prometheus.CounterVec
	RetriesTotal   *prometheus.CounterVec
	RateLimitTotal *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
	PromptTokens   *prometheus.CounterVec
	CompletionTokens *prometheus.CounterVec
	ProviderHealth *prometheus.GaugeVec
}

// New builds a Metrics bundle and registers every collector against reg. If
// reg is nil, prometheus.DefaultRegisterer is used. Passing an independent
// *prometheus.Registry keeps multiple Managers (or Manager instances created
// repeatedly in tests) from colliding on collector names.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	labels := []string{"provider", "model", "task"}
	errLabels := []string{"provider", "model", "task", "error_type"}

	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total dispatch attempts, one increment per classified outcome.",
		}, labels),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Dispatch attempts that classified as an error, labeled by error_type.",
		}, errLabels),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Retry iterations taken by the dispatcher after a non-success classification.",
		}, labels),
		RateLimitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limits_total",
			Help:      "Dispatch attempts classified as RateLimit.",
		}, labels),
		RequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Adapter call duration in seconds, per attempt.",
			Buckets:   durationBuckets,
		}, labels),
		PromptTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prompt_tokens_total",
			Help:      "Cumulative prompt tokens across successful calls.",
		}, labels),
		CompletionTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completion_tokens_total",
			Help:      "Cumulative completion tokens across successful calls.",
		}, labels),
		ProviderHealth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_health",
			Help:      "1 if the instance's most recent call succeeded, 0 otherwise.",
		}, []string{"provider", "model"}),
	}

	for _, c := range []prometheus.Collector{
		m.RequestsTotal, m.ErrorsTotal, m.RetriesTotal, m.RateLimitTotal,
		m.RequestSeconds, m.PromptTokens, m.CompletionTokens, m.ProviderHealth,
	} {
		reg.MustRegister(c)
	}
	return m
}

// TaskLabel returns task if non-empty, else "default" — the fallback named
// in §6's label description.
func TaskLabel(task string) string {
	if task == "" {
		return "default"
	}
	return task
}
