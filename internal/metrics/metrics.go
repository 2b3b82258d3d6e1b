// Package metrics exposes Prometheus instruments for the intake service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector of the service. A nil *Metrics is valid and records nothing.
type Metrics struct {
	rpcTotal       *prometheus.CounterVec
	rpcLatency     *prometheus.HistogramVec
	submissions    *prometheus.CounterVec
	registrations  prometheus.Counter
	rateLimited    *prometheus.CounterVec
	effectFailures *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors in reg. reg must also be a Gatherer to serve Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		rpcTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benchboard_rpc_requests_total",
			Help: "gRPC requests by method and status code.",
		}, []string{"method", "code"}),
		rpcLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "benchboard_rpc_duration_seconds",
			Help:    "gRPC handling latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benchboard_submissions_total",
			Help: "Ingested submissions by outcome.",
		}, []string{"outcome"}),
		registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "benchboard_registrations_total",
			Help: "Issued client credentials.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benchboard_rate_limited_total",
			Help: "Requests rejected by a quota.",
		}, []string{"quota"}),
		effectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "benchboard_effect_failures_total",
			Help: "Discarded failures of best-effort side effects.",
		}, []string{"effect"}),
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	}
	return m
}

// ObserveRPC records one finished call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcTotal.WithLabelValues(method, code).Inc()
	m.rpcLatency.WithLabelValues(method).Observe(d.Seconds())
}

// SubmissionIngested counts an ingest by whether it stored a new row.
func (m *Metrics) SubmissionIngested(isNew bool) {
	if m == nil {
		return
	}
	outcome := "duplicate"
	if isNew {
		outcome = "new"
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// Registered counts an issued credential.
func (m *Metrics) Registered() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

// RateLimited counts a quota rejection. quota is "registration" or "submission".
func (m *Metrics) RateLimited(quota string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(quota).Inc()
}

// EffectFailed counts a swallowed best-effort failure.
func (m *Metrics) EffectFailed(effect string) {
	if m == nil {
		return
	}
	m.effectFailures.WithLabelValues(effect).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
