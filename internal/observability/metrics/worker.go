package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/plant-catalogue/internal/core/domain"
)

type WorkerMetrics struct {
	service  string
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	runsInFlight  prometheus.Gauge
	entriesTotal  *prometheus.CounterVec
	lastSuccessTS prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Reconciliation runs by status.",
		},
		[]string{"service", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "run_duration_seconds",
			Help:      "Reconciliation run duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "runs_in_flight",
			Help:      "Number of reconciliation runs in progress.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	entriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "entries_total",
			Help:      "Catalogue entries visited by result.",
		},
		[]string{"service", "result"},
	)
	lastSuccessTS := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful reconciliation run.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(runsTotal, runDuration, runsInFlight, entriesTotal, lastSuccessTS)

	return &WorkerMetrics{
		service:       service,
		registry:      registry,
		runsTotal:     runsTotal,
		runDuration:   runDuration,
		runsInFlight:  runsInFlight,
		entriesTotal:  entriesTotal,
		lastSuccessTS: lastSuccessTS,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *WorkerMetrics) FinishRun() {
	m.runsInFlight.Dec()
}

func (m *WorkerMetrics) ObserveReconcile(report domain.ReconcileReport, elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(m.service, status).Inc()
	m.runDuration.WithLabelValues(m.service, status).Observe(elapsed.Seconds())

	m.entriesTotal.WithLabelValues(m.service, "updated").Add(float64(report.Updated))
	m.entriesTotal.WithLabelValues(m.service, "skipped").Add(float64(report.Skipped))
	m.entriesTotal.WithLabelValues(m.service, "failed").Add(float64(report.Failed))
	if err == nil {
		m.lastSuccessTS.SetToCurrentTime()
	}
}
