package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	httpadapter "github.com/kirillkom/findoc-assistant/internal/adapters/http"
	"github.com/kirillkom/findoc-assistant/internal/adapters/realtime"
	"github.com/kirillkom/findoc-assistant/internal/config"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
	"github.com/kirillkom/findoc-assistant/internal/core/usecase"
	natsbus "github.com/kirillkom/findoc-assistant/internal/infrastructure/events/nats"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/extractor"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/llm/stub"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/report"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/findoc-assistant/internal/observability/metrics"
)

const (
	serviceName   = "findoc-api"
	hubBufferSize = 32

	shutdownNotice = "The server is restarting. Please reconnect in a moment."
)

// App holds the wired service graph for one API process.
type App struct {
	Config     config.Config
	Handler    http.Handler
	Hub        *realtime.Hub
	Dispatcher *usecase.Dispatcher

	stopListen context.CancelFunc
	listenDone chan struct{}
	closers    []func()
}

type stores struct {
	documents ports.DocumentRepository
	chats     ports.ChatRepository
	close     func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	app := &App{Config: cfg}

	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, st.close)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resiliencePolicy(cfg))

	registry := metrics.NewRegistry()
	httpMetrics := metrics.NewHTTPServerMetrics(serviceName, registry)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, registry)

	analyzer, responder, ocr := buildLLM(cfg, executor)
	textExtractor := extractor.New(ocr, extractor.WithMaxImageBytes(cfg.MaxUploadBytes))

	hub := realtime.NewHub(hubBufferSize)
	app.Hub = hub

	var notifier ports.StatusNotifier = hub
	if cfg.NATSURL != "" {
		bus, err := natsbus.Connect(cfg.NATSURL, cfg.NATSStatusSubject, natsbus.Options{ResilienceExecutor: executor})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init status bus: %w", err)
		}
		app.closers = append(app.closers, bus.Close)
		notifier = bus

		listenCtx, cancel := context.WithCancel(context.Background())
		app.stopListen = cancel
		app.listenDone = make(chan struct{})
		go func() {
			defer close(app.listenDone)
			if err := bus.Listen(listenCtx, hub.DocumentStatusChanged); err != nil {
				slog.Error("status_bus_listen_failed", "error", err)
			}
		}()
	}

	processUC := usecase.NewProcessDocumentUseCase(
		st.documents, storage, textExtractor, analyzer,
		usecase.WithStatusNotifier(notifier),
		usecase.WithPipelineObserver(pipelineMetrics),
		usecase.WithWorkDir(cfg.WorkDir),
		usecase.WithTimeouts(usecase.ProcessTimeouts{
			Extract: cfg.ExtractTimeout(),
			Analyze: cfg.AnalyzeTimeout(),
		}),
	)
	dispatcher := usecase.NewDispatcher(processUC, cfg.PipelineConcurrency, cfg.PipelineTimeout())
	app.Dispatcher = dispatcher

	recovered, err := usecase.RecoverUnfinished(ctx, st.documents, dispatcher, cfg.PipelineTimeout(), time.Now())
	if err != nil {
		slog.Warn("pipeline_recovery_failed", "error", err)
	} else if recovered.Redispatched > 0 || recovered.Failed > 0 {
		slog.Info("pipeline_recovered", "redispatched", recovered.Redispatched, "failed", recovered.Failed)
	}

	ingestUC := usecase.NewIngestDocumentUseCase(st.documents, storage, dispatcher, usecase.IngestOptions{
		MaxUploadBytes:    cfg.MaxUploadBytes,
		AllowedMediaTypes: cfg.AllowedMediaTypes,
	})
	documentsUC := usecase.NewDocumentsUseCase(st.documents, storage)
	queryUC := usecase.NewQueryUseCase(st.documents, responder, cfg.ChatContextDocuments)
	analyticsUC := usecase.NewAnalyticsUseCase(st.documents, cfg.Location())
	chatUC := usecase.NewChatUseCase(st.chats, st.documents, responder, usecase.ChatOptions{
		HistoryWindow:     cfg.ChatHistoryWindow,
		ContextDocuments:  cfg.ChatContextDocuments,
		SnapshotDocuments: cfg.ChatSnapshotDocuments,
		ResponseTimeout:   cfg.ChatTimeout(),
	})

	liveChat := realtime.NewChatChannel(hub, chatUC, httpadapter.UserIDFromRequest, realtime.ChannelOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TurnTimeout:    cfg.ChatTimeout(),
		Observer:       httpMetrics,
	})

	app.Handler = httpadapter.NewRouter(cfg, httpadapter.Services{
		Ingestor:  ingestUC,
		Documents: documentsUC,
		Query:     queryUC,
		Analytics: analyticsUC,
		Chat:      chatUC,
		Exporter:  report.NewXLSXExporter(),
		LiveChat:  liveChat.Handler(),
		Metrics:   httpMetrics,
	}).Handler()

	slog.Info("app_initialized",
		"store", cfg.StoreDriver,
		"llm", llmMode(cfg),
		"status_bus", cfg.NATSURL != "",
		"pipeline_concurrency", cfg.PipelineConcurrency,
	)
	return app, nil
}

// Shutdown tells live clients the server is going away, then drains the pipeline.
// Runs still going when ctx expires are cancelled and recorded as failed.
func (a *App) Shutdown(ctx context.Context) error {
	if a.Hub != nil {
		notified := a.Hub.Broadcast(realtime.Frame{
			Type:      realtime.FrameMessage,
			Content:   shutdownNotice,
			Timestamp: time.Now().UTC(),
			IsFromBot: true,
		})
		slog.Info("shutdown_notice_sent", "clients", notified)
	}

	var err error
	if a.Dispatcher != nil {
		if shutdownErr := a.Dispatcher.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("drain pipeline: %w", shutdownErr)
		}
	}
	if a.stopListen != nil {
		a.stopListen()
		<-a.listenDone
	}
	a.Close()
	return err
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Migrate creates the postgres schema. It is a no-op for the memory store.
func Migrate(ctx context.Context, cfg config.Config) error {
	if cfg.StoreDriver != config.StorePostgres {
		slog.Info("migrate_skipped", "store", cfg.StoreDriver)
		return nil
	}
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("migrate_completed")
	return nil
}

func openStores(ctx context.Context, cfg config.Config) (stores, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		return stores{
			documents: memory.NewDocumentStore(cfg.Location()),
			chats:     memory.NewChatStore(),
			close:     func() {},
		}, nil
	case config.StorePostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return stores{}, fmt.Errorf("open postgres: %w", err)
		}
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return stores{}, fmt.Errorf("ensure schema: %w", err)
		}
		return stores{
			documents: postgres.NewDocumentRepository(db, cfg.Location()),
			chats:     postgres.NewChatRepository(db),
			close:     closeDB(db),
		}, nil
	default:
		return stores{}, errors.New("unknown store driver " + cfg.StoreDriver)
	}
}

func closeDB(db *sql.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			slog.Warn("postgres_close_failed", "error", err)
		}
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	policy := resilience.DefaultPolicy()
	policy.Retry.MaxAttempts = cfg.ResilienceRetryMaxAttempts
	policy.Breaker.Enabled = cfg.ResilienceBreakerEnabled
	return policy
}

// buildLLM returns the Ollama-backed adapters, or the deterministic stubs when no
// Ollama URL is configured. OCR is nil unless a vision model is set.
func buildLLM(cfg config.Config, executor *resilience.Executor) (ports.DocumentAnalyzer, ports.ChatResponder, ports.ImageOCR) {
	if cfg.OllamaURL == "" {
		return stub.Analyzer{}, stub.ChatResponder{}, nil
	}
	client := ollama.New(ollama.Config{
		BaseURL:           cfg.OllamaURL,
		GenModel:          cfg.OllamaGenModel,
		VisionModel:       cfg.OllamaVisionModel,
		Temperature:       cfg.LLMTemperature,
		ChatTemperature:   cfg.LLMChatTemperature,
		MaxInputChars:     cfg.LLMMaxInputChars,
		MaxResponseTokens: cfg.LLMMaxResponseTokens,
		HTTPTimeout:       max(cfg.AnalyzeTimeout(), cfg.ChatTimeout()),
	}, executor)

	var ocr ports.ImageOCR
	if cfg.OllamaVisionModel != "" {
		ocr = ollama.NewVisionOCR(client)
	}
	return ollama.NewAnalyzer(client), ollama.NewChatResponder(client), ocr
}

func llmMode(cfg config.Config) string {
	if cfg.OllamaURL == "" {
		return "stub"
	}
	return "ollama"
}
