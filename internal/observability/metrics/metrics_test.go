package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func TestHTTPMiddlewareNormalizesDocumentPaths(t *testing.T) {
	registry := NewRegistry()
	m := NewHTTPServerMetrics("api", registry)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	for _, path := range []string{"/documents/a", "/documents/b", "/documents/c/download"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "/documents/{id}", "404")); got != 2 {
		t.Fatalf("expected 2 requests on /documents/{id}, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", "GET", "/documents/{id}/download", "404")); got != 1 {
		t.Fatalf("expected 1 download request, got %v", got)
	}
	if got := testutil.ToFloat64(m.requestInFlight); got != 0 {
		t.Fatalf("expected in-flight gauge back to 0, got %v", got)
	}
}

func TestSharedRegistryExposesBothMetricSets(t *testing.T) {
	registry := NewRegistry()
	httpMetrics := NewHTTPServerMetrics("api", registry)
	pipeline := NewPipelineMetrics("api", registry)

	pipeline.StartDocument()
	pipeline.AnalysisDegraded()
	pipeline.FinishDocument(domain.StatusCompleted, 2*time.Second)
	httpMetrics.RecordChatTurn("ws", time.Second, nil)
	httpMetrics.RecordQuery(3, nil)
	httpMetrics.RecordUpload("application/pdf", 2048, nil)

	rec := httptest.NewRecorder()
	httpMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, name := range []string{
		"findoc_pipeline_documents_processed_total",
		"findoc_pipeline_analysis_degraded_total",
		"findoc_chat_turns_total",
		"findoc_query_requests_total",
		"findoc_documents_uploads_total",
	} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output misses %s", name)
		}
	}
	if got := testutil.ToFloat64(pipeline.processInFlight); got != 0 {
		t.Fatalf("expected no documents in flight, got %v", got)
	}
}

func TestPipelineMetricsLabelsAbortedRuns(t *testing.T) {
	pipeline := NewPipelineMetrics("api", nil)
	pipeline.StartDocument()
	pipeline.FinishDocument("", time.Millisecond)
	pipeline.ObserveQueueLag(-time.Second)

	if got := testutil.ToFloat64(pipeline.processTotal.WithLabelValues("api", "aborted")); got != 1 {
		t.Fatalf("expected aborted run to be counted, got %v", got)
	}
}

func TestRecordUploadRejected(t *testing.T) {
	m := NewHTTPServerMetrics("api", nil)
	m.RecordUpload("", 0, errors.New("too large"))
	if got := testutil.ToFloat64(m.uploadsTotal.WithLabelValues("api", "unknown", "rejected")); got != 1 {
		t.Fatalf("expected rejected upload, got %v", got)
	}
}
