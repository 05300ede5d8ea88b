package ports

import (
	"context"
	"io"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type UploadRequest struct {
	OwnerID  string
	Filename string
	MimeType string
	Size     int64
	Body     io.Reader
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.Document, error)
}

// DocumentService is the inbound read/delete model for a user's documents.
type DocumentService interface {
	List(ctx context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) (domain.DocumentPage, error)
	Get(ctx context.Context, ownerID, id string) (*domain.Document, error)
	Delete(ctx context.Context, ownerID, id string) error
	OpenFile(ctx context.Context, ownerID, id string) (*domain.Document, io.ReadCloser, error)
}

// DocumentProcessor is the inbound contract for processing one document.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentDispatcher starts processing without waiting for it.
type DocumentDispatcher interface {
	Dispatch(documentID string)
}

// DocumentQueryService answers one-shot questions over a user's documents.
type DocumentQueryService interface {
	Answer(ctx context.Context, ownerID, query string, documentIDs []string) (*domain.QueryAnswer, error)
}

type AnalyticsService interface {
	Dashboard(ctx context.Context, ownerID string) (domain.DocumentStats, error)
	ProcessingQueue(ctx context.Context, ownerID string) ([]domain.QueueItem, error)
	Report(ctx context.Context, ownerID string, reportType domain.ReportType, rng domain.ReportRange) (*domain.Report, error)
	Trends(ctx context.Context, ownerID, period string) (*domain.Trends, error)
	Performance(ctx context.Context) (*domain.Performance, error)
}

type ChatService interface {
	SendMessage(ctx context.Context, userID, sessionID, content string) (*domain.ChatTurn, error)
	CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	History(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error)
}
