// Package metrics holds the Prometheus collectors of the ledger service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voteledger"

// Registry holds every collector the service exports.
type Registry struct {
	registry *prometheus.Registry

	VoteAttempts          *prometheus.CounterVec
	ShareUnlocks          *prometheus.CounterVec
	Reconciliations       *prometheus.CounterVec
	ReconciliationFailure prometheus.Counter
	Notifications         *prometheus.CounterVec
	HTTPRequests          *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
}

func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		VoteAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "vote_attempts_total",
				Help:      "Vote attempts by kind and outcome status",
			},
			[]string{"kind", "status"},
		),

		ShareUnlocks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "share_unlocks_total",
				Help:      "Share unlock requests and confirmations by result",
			},
			[]string{"category", "result"},
		),

		Reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliations_total",
				Help:      "Counter reconciliation attempts by result",
			},
			[]string{"result"},
		),

		ReconciliationFailure: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconciliation_failures_total",
				Help:      "Events whose counter update failed after every retry",
			},
		),

		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Vote notifications by delivery result",
			},
			[]string{"result"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),

		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method", "route"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.VoteAttempts,
		r.ShareUnlocks,
		r.Reconciliations,
		r.ReconciliationFailure,
		r.Notifications,
		r.HTTPRequests,
		r.HTTPDuration,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Registry) RecordVote(kind, status string) {
	r.VoteAttempts.WithLabelValues(kind, status).Inc()
}

func (r *Registry) RecordUnlock(category, result string) {
	if category == "" {
		category = "unknown"
	}
	r.ShareUnlocks.WithLabelValues(category, result).Inc()
}

func (r *Registry) RecordReconcile(result string) {
	r.Reconciliations.WithLabelValues(result).Inc()
	if result == "failed" {
		r.ReconciliationFailure.Inc()
	}
}

func (r *Registry) RecordNotification(result string) {
	r.Notifications.WithLabelValues(result).Inc()
}

func (r *Registry) RecordHTTP(method, route string, code int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
