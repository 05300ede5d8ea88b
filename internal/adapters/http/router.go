package httpadapter

import (
	"net/http"

	"github.com/kirillkom/findoc-assistant/internal/config"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
	"github.com/kirillkom/findoc-assistant/internal/observability/metrics"
)

// Services bundles the inbound ports served over HTTP. LiveChat and Metrics are optional.
type Services struct {
	Ingestor  ports.DocumentIngestor
	Documents ports.DocumentService
	Query     ports.DocumentQueryService
	Analytics ports.AnalyticsService
	Chat      ports.ChatService
	Exporter  ports.ReportExporter
	LiveChat  http.Handler
	Metrics   *metrics.HTTPServerMetrics
}

type Router struct {
	cfg config.Config
	svc Services
}

func NewRouter(cfg config.Config, svc Services) *Router {
	return &Router{cfg: cfg, svc: svc}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.svc.Metrics != nil {
		mux.Handle("GET /metrics", rt.svc.Metrics.Handler())
	}

	mux.HandleFunc("POST /documents/upload", rt.uploadDocument)
	mux.HandleFunc("GET /documents", rt.listDocuments)
	mux.HandleFunc("POST /documents/query", rt.queryDocuments)
	mux.HandleFunc("GET /documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /documents/{id}", rt.deleteDocument)
	mux.HandleFunc("GET /documents/{id}/download", rt.downloadDocument)

	mux.HandleFunc("GET /analytics/dashboard", rt.dashboard)
	mux.HandleFunc("GET /analytics/processing-queue", rt.processingQueue)
	mux.HandleFunc("GET /analytics/reports", rt.reports)
	mux.HandleFunc("GET /analytics/reports/export", rt.exportReport)
	mux.HandleFunc("GET /analytics/trends", rt.trends)
	mux.HandleFunc("GET /analytics/performance", rt.performance)

	mux.HandleFunc("POST /chat/message", rt.sendChatMessage)
	mux.HandleFunc("GET /chat/history", rt.chatHistory)
	mux.HandleFunc("POST /chat/session", rt.createChatSession)
	mux.HandleFunc("GET /chat/sessions", rt.listChatSessions)
	mux.HandleFunc("DELETE /chat/session/{id}", rt.deleteChatSession)

	if rt.svc.LiveChat != nil {
		mux.Handle("GET /ws/chat", rt.svc.LiveChat)
	}

	var handler http.Handler = mux
	handler = identityMiddleware(handler, rt.cfg.DefaultUserID)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.BackpressureWait())
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	if rt.svc.Metrics != nil {
		handler = rt.svc.Metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return recoverMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
