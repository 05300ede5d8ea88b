package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

// DocumentRepository persists document records and owns their status transitions.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) ([]domain.Document, int, error)
	// Update applies patch atomically. It returns domain.ErrDocumentNotFound for a missing id
	// and domain.ErrInvalidTransition when the patch would move status backwards.
	Update(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Document, error)
	RecentlyCompleted(ctx context.Context, limit int) ([]domain.Document, error)
	// ListUnfinished returns pending and processing documents of every owner, oldest upload first.
	ListUnfinished(ctx context.Context) ([]domain.Document, error)
	Stats(ctx context.Context, ownerID string, now time.Time) (domain.DocumentStats, error)
	ProcessingQueue(ctx context.Context, ownerID string) ([]domain.QueueItem, error)
}

// ChatRepository persists chat sessions and messages.
type ChatRepository interface {
	CreateSession(ctx context.Context, session *domain.ChatSession) error
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, message *domain.ChatMessage) error
	ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error)
	ListUserMessages(ctx context.Context, userID string) ([]domain.ChatMessage, error)
}

// ObjectStorage stores uploaded files under generated keys.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// TextExtractor turns a file on disk into text.
type TextExtractor interface {
	Extract(ctx context.Context, filePath, mediaType string) (domain.Extraction, error)
}

// ImageOCR recognizes text in an image.
type ImageOCR interface {
	RecognizeText(ctx context.Context, image []byte, mediaType string) (string, error)
}

// DocumentAnalyzer classifies text and extracts entities. It never fails: on backend
// problems it returns domain.DegradedAnalysis.
type DocumentAnalyzer interface {
	AnalyzeDocument(ctx context.Context, text, filename string) domain.Analysis
}

// ChatResponder produces replies grounded in document context. On backend problems it
// returns a fixed fallback text instead of an error.
type ChatResponder interface {
	GenerateChatResponse(ctx context.Context, message string, documents []domain.ContextDocument, history []domain.ChatMessage) string
	AnswerQuery(ctx context.Context, query string, documents []domain.ContextDocument) string
}

// StatusNotifier announces document status changes.
type StatusNotifier interface {
	DocumentStatusChanged(ctx context.Context, event domain.StatusEvent) error
}

// PipelineObserver receives processing telemetry.
type PipelineObserver interface {
	StartDocument()
	FinishDocument(status domain.DocumentStatus, duration time.Duration)
	ObserveQueueLag(lag time.Duration)
	AnalysisDegraded()
}

// ReportExporter renders an analytics report as a downloadable file.
type ReportExporter interface {
	Export(w io.Writer, report *domain.Report) error
	ContentType() string
	FileName(report *domain.Report) string
}
