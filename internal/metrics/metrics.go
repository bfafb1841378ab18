// Package metrics exposes Prometheus collectors for the HTTP surface and the
// authentication flows.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"identity-service/internal/event"
)

// Token verification results.
const (
	VerificationValid   = "valid"
	VerificationExpired = "expired"
	VerificationInvalid = "invalid"
	VerificationMissing = "missing"
)

type Metrics struct {
	registry           *prometheus.Registry
	requests           *prometheus.CounterVec
	duration           *prometheus.HistogramVec
	authEvents         *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
}

// New builds a private registry with the service collectors plus the Go and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_http_requests_total",
				Help: "Total number of HTTP requests handled",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_auth_events_total",
				Help: "Total number of authentication events by type",
			},
			[]string{"event"},
		),
		tokenVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_token_verifications_total",
				Help: "Total number of session token verifications by result",
			},
			[]string{"result"},
		),
	}

	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.authEvents,
		m.tokenVerifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordAuthEvent(t event.Type) {
	m.authEvents.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) RecordTokenVerification(result string) {
	m.tokenVerifications.WithLabelValues(result).Inc()
}

// Consume counts every event from ch until ctx is done or ch is closed.
func (m *Metrics) Consume(ctx context.Context, ch <-chan event.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.RecordAuthEvent(e.Type)
		}
	}
}
