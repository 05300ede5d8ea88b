package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "findoc"

// NewRegistry returns the process-wide registry shared by HTTP and pipeline metrics.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler exposes a registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	chatTurnsTotal    *prometheus.CounterVec
	chatTurnDuration  *prometheus.HistogramVec
	queriesTotal      *prometheus.CounterVec
	queryContextDocs  prometheus.Histogram
	wsConnections     prometheus.Gauge
	wsFramesTotal     *prometheus.CounterVec
	uploadsTotal      *prometheus.CounterVec
	uploadedBytesSize prometheus.Histogram
}

func NewHTTPServerMetrics(service string, registry *prometheus.Registry) *HTTPServerMetrics {
	if registry == nil {
		registry = NewRegistry()
	}

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "http",
			Name:        "requests_in_flight",
			Help:        "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	chatTurnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Total chat turns by channel and outcome.",
		},
		[]string{"service", "channel", "status"},
	)
	chatTurnDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Chat turn duration in seconds, model call included.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"service", "channel"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total one-shot document queries by outcome.",
		},
		[]string{"service", "status"},
	)
	queryContextDocs := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "query",
			Name:        "context_documents",
			Help:        "Number of documents used as query context.",
			Buckets:     []float64{0, 1, 2, 5, 10, 20, 50},
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	wsConnections := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "ws",
			Name:        "connections",
			Help:        "Number of open live chat connections.",
			ConstLabels: prometheus.Labels{"service": service},
		},
	)
	wsFramesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "frames_total",
			Help:      "Total live channel frames by direction and type.",
		},
		[]string{"service", "direction", "type"},
	)
	uploadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Total upload attempts by media type and outcome.",
		},
		[]string{"service", "media_type", "status"},
	)
	uploadedBytes := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "documents",
			Name:        "upload_size_bytes",
			Help:        "Size of accepted uploads in bytes.",
			Buckets:     prometheus.ExponentialBuckets(1024, 4, 8),
			ConstLabels: prometheus.Labels{"service": service},
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		chatTurnsTotal,
		chatTurnDuration,
		queriesTotal,
		queryContextDocs,
		wsConnections,
		wsFramesTotal,
		uploadsTotal,
		uploadedBytes,
	)

	return &HTTPServerMetrics{
		service:           service,
		registry:          registry,
		requestTotal:      requestTotal,
		requestDuration:   requestDuration,
		requestInFlight:   requestInFlight,
		chatTurnsTotal:    chatTurnsTotal,
		chatTurnDuration:  chatTurnDuration,
		queriesTotal:      queriesTotal,
		queryContextDocs:  queryContextDocs,
		wsConnections:     wsConnections,
		wsFramesTotal:     wsFramesTotal,
		uploadsTotal:      uploadsTotal,
		uploadedBytesSize: uploadedBytes,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return Handler(m.registry)
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath folds id segments so label cardinality stays bounded.
func normalizePath(path string) string {
	switch {
	case path == "/documents/query" || path == "/documents/upload":
		return path
	case strings.HasPrefix(path, "/documents/") && strings.HasSuffix(path, "/download"):
		return "/documents/{id}/download"
	case strings.HasPrefix(path, "/documents/"):
		return "/documents/{id}"
	case strings.HasPrefix(path, "/chat/session/"):
		return "/chat/session/{id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordChatTurn(channel string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.chatTurnsTotal.WithLabelValues(m.service, channel, status).Inc()
	m.chatTurnDuration.WithLabelValues(m.service, channel).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordQuery(contextDocuments int, err error) {
	if err != nil {
		m.queriesTotal.WithLabelValues(m.service, "error").Inc()
		return
	}
	m.queriesTotal.WithLabelValues(m.service, "success").Inc()
	m.queryContextDocs.Observe(float64(contextDocuments))
}

func (m *HTTPServerMetrics) RecordUpload(mediaType string, size int64, err error) {
	if mediaType == "" {
		mediaType = "unknown"
	}
	if err != nil {
		m.uploadsTotal.WithLabelValues(m.service, mediaType, "rejected").Inc()
		return
	}
	m.uploadsTotal.WithLabelValues(m.service, mediaType, "accepted").Inc()
	m.uploadedBytesSize.Observe(float64(size))
}

func (m *HTTPServerMetrics) WSConnected() {
	m.wsConnections.Inc()
}

func (m *HTTPServerMetrics) WSDisconnected() {
	m.wsConnections.Dec()
}

func (m *HTTPServerMetrics) RecordWSFrame(direction, frameType string) {
	if frameType == "" {
		frameType = "unknown"
	}
	m.wsFramesTotal.WithLabelValues(m.service, direction, frameType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

// Hijack keeps websocket upgrades working behind the recorder.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
