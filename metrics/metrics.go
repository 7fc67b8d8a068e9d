// Package metrics exposes Prometheus series for acquisition, extraction and
// completion calls. A Metrics value owns its registry so several pipelines in
// one process never collide on the default registerer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "repograph"

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics implements fetch.Observer and llm.Observer.
type Metrics struct {
	registry *prometheus.Registry

	fetchAttempts   *prometheus.CounterVec
	fetchRetries    *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	completions     *prometheus.CounterVec
	completionTime  *prometheus.HistogramVec
	triples         *prometheus.CounterVec
	repositories    *prometheus.CounterVec
	malformedOutput prometheus.Counter
}

// New creates a Metrics value with all series registered. Go runtime and
// process collectors are included so the /metrics endpoint is useful on its own.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "HTTP attempts by host and status class.",
		}, []string{"host", "status"}),
		fetchRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "retries_total",
			Help:      "Transient failures that were retried.",
		}, []string{"host"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual HTTP attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completions_total",
			Help:      "Chat completions by capability, model and outcome.",
		}, []string{"capability", "model", "outcome"}),
		completionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "completion_duration_seconds",
			Help:      "Wall time of chat completions including retries.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}, []string{"capability"}),
		triples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "triples_total",
			Help:      "Candidate triples produced by source.",
		}, []string{"source"}),
		repositories: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "repositories_total",
			Help:      "Repositories processed by outcome.",
		}, []string{"outcome"}),
		malformedOutput: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extract",
			Name:      "malformed_outputs_total",
			Help:      "Model replies that could not be parsed as relations.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchAttempts,
		m.fetchRetries,
		m.fetchDuration,
		m.completions,
		m.completionTime,
		m.triples,
		m.repositories,
		m.malformedOutput,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAttempt records one HTTP attempt. A transport error is labelled
// "error"; otherwise the status is bucketed as 2xx, 4xx and so on.
func (m *Metrics) ObserveAttempt(host string, status int, err error, elapsed time.Duration) {
	m.fetchAttempts.WithLabelValues(host, statusClass(status, err)).Inc()
	m.fetchDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

// ObserveRetry records a retried transient failure.
func (m *Metrics) ObserveRetry(host string) {
	m.fetchRetries.WithLabelValues(host).Inc()
}

// ObserveCompletion records one Complete call.
func (m *Metrics) ObserveCompletion(capability, model string, err error, elapsed time.Duration) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	if model == "" {
		model = "none"
	}
	m.completions.WithLabelValues(capability, model, outcome).Inc()
	m.completionTime.WithLabelValues(capability).Observe(elapsed.Seconds())
}

// AddTriples counts n triples from source.
func (m *Metrics) AddTriples(source string, n int) {
	if n <= 0 {
		return
	}
	m.triples.WithLabelValues(source).Add(float64(n))
}

// RepositoryDone counts a processed repository. outcome is "ok" or "skipped".
func (m *Metrics) RepositoryDone(outcome string) {
	m.repositories.WithLabelValues(outcome).Inc()
}

// MalformedOutput counts an unparseable model reply.
func (m *Metrics) MalformedOutput() {
	m.malformedOutput.Inc()
}

func statusClass(status int, err error) string {
	if err != nil || status <= 0 {
		return OutcomeError
	}
	return strconv.Itoa(status/100) + "xx"
}
