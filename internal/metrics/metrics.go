package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Requests        *prometheus.CounterVec   // http_requests_total{route,method,status}
	Latency         *prometheus.HistogramVec // http_request_duration_seconds{route,method}
	UseCases        *prometheus.CounterVec   // usecase_requests_total{use_case,outcome}
	UseCaseDuration *prometheus.HistogramVec // usecase_duration_seconds{use_case}
	OutboxPublished *prometheus.CounterVec   // outbox_published_total{topic}
	OutboxFailures  prometheus.Counter
	JournalEvents   *prometheus.CounterVec // journal_events_total{event,outcome}

	gatherer prometheus.Gatherer
}

// New registers the service collectors on reg. Tests pass prometheus.NewRegistry().
func New(namespace string, reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		UseCases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usecase_requests_total",
			Help:      "Total number of use case invocations.",
		}, []string{"use_case", "outcome"}),
		UseCaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "usecase_duration_seconds",
			Help:      "Duration of use case execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"use_case"}),
		OutboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox records delivered to Kafka.",
		}, []string{"topic"}),
		OutboxFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_failed_total",
			Help:      "Outbox relay batches that failed to publish.",
		}),
		JournalEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_events_total",
			Help:      "Stock events handled by the journal consumer.",
		}, []string{"event", "outcome"}),
		gatherer: reg,
	}
	reg.MustRegister(m.Requests, m.Latency, m.UseCases, m.UseCaseDuration,
		m.OutboxPublished, m.OutboxFailures, m.JournalEvents)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Nop returns metrics registered on a private registry, for tests and tools.
func Nop() *Metrics {
	return New("nop", prometheus.NewRegistry())
}
