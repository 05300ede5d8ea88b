package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

const failWriteTimeout = 10 * time.Second

type ProcessTimeouts struct {
	Extract time.Duration
	Analyze time.Duration
}

// ProcessDocumentUseCase drives one document through extraction, analysis and persistence.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	storage   ports.ObjectStorage
	extractor ports.TextExtractor
	analyzer  ports.DocumentAnalyzer
	notifier  ports.StatusNotifier
	observer  ports.PipelineObserver
	workDir   string
	timeouts  ProcessTimeouts
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

type ProcessOption func(*ProcessDocumentUseCase)

func WithStatusNotifier(n ports.StatusNotifier) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.notifier = n }
}

func WithPipelineObserver(o ports.PipelineObserver) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.observer = o }
}

// WithWorkDir sets where stored files are staged for extraction. Empty means os.TempDir.
func WithWorkDir(dir string) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.workDir = dir }
}

func WithTimeouts(t ProcessTimeouts) ProcessOption {
	return func(uc *ProcessDocumentUseCase) { uc.timeouts = t }
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractor ports.TextExtractor,
	analyzer ports.DocumentAnalyzer,
	opts ...ProcessOption,
) *ProcessDocumentUseCase {
	uc := &ProcessDocumentUseCase{
		repo:      repo,
		storage:   storage,
		extractor: extractor,
		analyzer:  analyzer,
		observer:  noopObserver{},
		now:       func() time.Time { return time.Now().UTC() },
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// ProcessByID runs the pipeline for one document. Once the document has entered
// processing, every exit path leaves it completed or failed. A document deleted
// mid-run ends the run without error.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) (err error) {
	if !uc.acquire(documentID) {
		return domain.WrapError(domain.ErrConflict, "process document", fmt.Errorf("document %s is already being processed", documentID))
	}
	defer uc.release(documentID)

	started := uc.now()
	doc, err := uc.update(ctx, documentID, domain.DocumentPatch{
		Status: ptr(domain.StatusProcessing),
		Stage:  ptr(domain.StageExtracting),
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}

	uc.observer.StartDocument()
	uc.observer.ObserveQueueLag(started.Sub(doc.UploadedAt))
	final := domain.StatusFailed
	defer func() { uc.observer.FinishDocument(final, uc.now().Sub(started)) }()

	defer func() {
		if r := recover(); r != nil {
			cause := fmt.Errorf("pipeline panic: %v", r)
			uc.markFailed(ctx, documentID, cause)
			err = cause
		}
	}()

	workPath, cleanup, err := uc.stageFile(ctx, doc)
	if err != nil {
		return uc.fail(ctx, documentID, domain.WrapError(domain.ErrExtraction, "stage file", err))
	}
	defer cleanup()

	extraction, err := uc.extract(ctx, workPath, doc.MimeType)
	if err != nil {
		return uc.fail(ctx, documentID, err)
	}

	if _, err := uc.update(ctx, documentID, domain.DocumentPatch{Stage: ptr(domain.StageAnalyzing)}); err != nil {
		return uc.stop(ctx, documentID, err)
	}

	analysis := uc.analyze(ctx, extraction.Text, doc.OriginalName)
	analysis.ProvisionalType = extraction.ProvisionalType
	if analysis.Degraded {
		uc.observer.AnalysisDegraded()
	}

	if _, err := uc.update(ctx, documentID, domain.DocumentPatch{Stage: ptr(domain.StagePersisting)}); err != nil {
		return uc.stop(ctx, documentID, err)
	}

	completed, err := uc.update(ctx, documentID, domain.DocumentPatch{
		Status:        ptr(domain.StatusCompleted),
		DocumentType:  ptr(analysis.DocumentType),
		ExtractedData: &analysis,
		OCRText:       ptr(extraction.Text),
		TotalValue:    analysis.TotalValueCents(),
	})
	if err != nil {
		return uc.stop(ctx, documentID, err)
	}

	final = domain.StatusCompleted
	slog.Info("document_processed",
		"document_id", documentID,
		"document_type", analysis.DocumentType,
		"degraded", analysis.Degraded,
		"duration_ms", completed.ProcessedAt.Sub(started).Milliseconds(),
	)
	return nil
}

func (uc *ProcessDocumentUseCase) extract(ctx context.Context, path, mediaType string) (domain.Extraction, error) {
	extractCtx, cancel := withOptionalTimeout(ctx, uc.timeouts.Extract)
	defer cancel()

	extraction, err := uc.extractor.Extract(extractCtx, path, mediaType)
	if err != nil {
		if domain.IsKind(err, domain.ErrExtraction) || domain.IsKind(err, domain.ErrUnsupportedMediaType) {
			return domain.Extraction{}, err
		}
		return domain.Extraction{}, domain.WrapError(domain.ErrExtraction, "extract text", err)
	}
	return extraction, nil
}

func (uc *ProcessDocumentUseCase) analyze(ctx context.Context, text, filename string) domain.Analysis {
	analyzeCtx, cancel := withOptionalTimeout(ctx, uc.timeouts.Analyze)
	defer cancel()
	return uc.analyzer.AnalyzeDocument(analyzeCtx, text, filename).Normalize()
}

// stageFile copies the stored upload into a private working file.
func (uc *ProcessDocumentUseCase) stageFile(ctx context.Context, doc *domain.Document) (string, func(), error) {
	src, err := uc.storage.Open(ctx, doc.Filename)
	if err != nil {
		return "", nil, fmt.Errorf("open stored file: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(uc.workDir, "findoc-*"+filepath.Ext(doc.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("create working file: %w", err)
	}
	path := dst.Name()
	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("working_file_cleanup_failed", "path", path, "error", err)
		}
	}

	_, err = io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("copy to working file: %w", err)
	}
	return path, cleanup, nil
}

func (uc *ProcessDocumentUseCase) update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	doc, err := uc.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	uc.notify(ctx, *doc)
	return doc, nil
}

func (uc *ProcessDocumentUseCase) notify(ctx context.Context, doc domain.Document) {
	if uc.notifier == nil {
		return
	}
	if err := uc.notifier.DocumentStatusChanged(ctx, domain.NewStatusEvent(doc, uc.now())); err != nil {
		slog.Warn("status_notification_failed", "document_id", doc.ID, "status", doc.Status, "error", err)
	}
}

// stop ends a run after a store write failed: silently when the document is gone,
// otherwise by marking it failed.
func (uc *ProcessDocumentUseCase) stop(ctx context.Context, id string, err error) error {
	if domain.IsKind(err, domain.ErrNotFound) {
		slog.Info("document_deleted_during_processing", "document_id", id)
		return nil
	}
	return uc.fail(ctx, id, fmt.Errorf("persist document: %w", err))
}

func (uc *ProcessDocumentUseCase) fail(ctx context.Context, id string, cause error) error {
	if !uc.markFailed(ctx, id, cause) {
		return nil
	}
	return cause
}

// markFailed writes the failed status on a context detached from the run's
// cancellation. It reports false when the document no longer exists.
func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, id string, cause error) bool {
	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failWriteTimeout)
	defer cancel()

	slog.Warn("document_processing_failed", "document_id", id, "error", cause)
	_, err := uc.update(failCtx, id, domain.DocumentPatch{Status: ptr(domain.StatusFailed)})
	switch {
	case err == nil:
		return true
	case domain.IsKind(err, domain.ErrNotFound):
		return false
	case domain.IsKind(err, domain.ErrInvalidTransition):
		return true
	default:
		slog.Error("mark_failed_error", "document_id", id, "error", err)
		return true
	}
}

func (uc *ProcessDocumentUseCase) acquire(id string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if _, busy := uc.inFlight[id]; busy {
		return false
	}
	uc.inFlight[id] = struct{}{}
	return true
}

func (uc *ProcessDocumentUseCase) release(id string) {
	uc.mu.Lock()
	delete(uc.inFlight, id)
	uc.mu.Unlock()
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func ptr[T any](v T) *T { return &v }

type noopObserver struct{}

func (noopObserver) StartDocument()                                      {}
func (noopObserver) FinishDocument(domain.DocumentStatus, time.Duration) {}
func (noopObserver) ObserveQueueLag(time.Duration)                       {}
func (noopObserver) AnalysisDegraded()                                   {}
