package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

// PipelineMetrics observes background document processing.
type PipelineMetrics struct {
	service string

	processTotal     *prometheus.CounterVec
	processDuration  *prometheus.HistogramVec
	processInFlight  prometheus.Gauge
	queueLag         *prometheus.HistogramVec
	degradedAnalyses *prometheus.CounterVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	if registry == nil {
		registry = NewRegistry()
	}

	processTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_processed_total",
			Help:      "Total processed documents by final status.",
		},
		[]string{"service", "status"},
	)
	processDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Document processing duration in seconds by final status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	processInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "documents_in_flight",
			Help:        "Number of documents currently being processed.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload and processing start.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"service"},
	)
	degraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "analysis_degraded_total",
			Help:      "Total analyses that fell back to the degraded result.",
		},
		[]string{"service"},
	)

	registry.MustRegister(processTotal, processDuration, processInFlight, queueLag, degraded)

	return &PipelineMetrics{
		service:          service,
		processTotal:     processTotal,
		processDuration:  processDuration,
		processInFlight:  processInFlight,
		queueLag:         queueLag,
		degradedAnalyses: degraded,
	}
}

func (m *PipelineMetrics) StartDocument() {
	m.processInFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument(status domain.DocumentStatus, duration time.Duration) {
	m.processInFlight.Dec()

	label := string(status)
	if label == "" {
		label = "aborted"
	}
	m.processTotal.WithLabelValues(m.service, label).Inc()
	m.processDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *PipelineMetrics) AnalysisDegraded() {
	m.degradedAnalyses.WithLabelValues(m.service).Inc()
}
