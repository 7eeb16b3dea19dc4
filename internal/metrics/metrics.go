// Package metrics defines the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mnemo"

// Metrics groups every collector of the service.
type Metrics struct {
	reviews     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	conflicts   prometheus.Counter
	retries     prometheus.Counter
	latency     prometheus.Histogram
	transitions *prometheus.CounterVec
	dueServed   prometheus.Histogram

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reviews: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_total",
			Help:      "Reviews committed, by item kind and grade.",
		}, []string{"kind", "grade"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reviews_rejected_total",
			Help:      "Reviews that failed, by error class.",
		}, []string{"reason"}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_conflicts_total",
			Help:      "Version conflicts detected while writing review state.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_retries_total",
			Help:      "Read-modify-write attempts repeated after a conflict.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "review_duration_seconds",
			Help:      "Time to validate, compute and commit one review.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mastery_color_transitions_total",
			Help:      "Mastery color changes, by from and to color.",
		}, []string{"from", "to"}),
		dueServed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "due_items_served",
			Help:      "Items returned per due-list request.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100, 250, 500},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route and status code.",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency, by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.reviews, m.rejected, m.conflicts, m.retries, m.latency,
		m.transitions, m.dueServed, m.httpRequests, m.httpLatency,
	)
	return m
}

// ObserveReview records a committed review.
func (m *Metrics) ObserveReview(kind string, grade int, d time.Duration) {
	if m == nil {
		return
	}
	m.reviews.WithLabelValues(kind, strconv.Itoa(grade)).Inc()
	m.latency.Observe(d.Seconds())
}

// Reject records a failed review.
func (m *Metrics) Reject(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// Conflict records a lost compare-and-swap.
func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// Retry records a repeated attempt.
func (m *Metrics) Retry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

// Transition records a mastery color change.
func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// DueServed records the size of a due list.
func (m *Metrics) DueServed(n int) {
	if m == nil {
		return
	}
	m.dueServed.Observe(float64(n))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}
