package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/config"
	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type ingestFake struct {
	mu   sync.Mutex
	last ports.UploadRequest
	body []byte
	err  error
}

func (f *ingestFake) Upload(_ context.Context, req ports.UploadRequest) (*domain.Document, error) {
	raw, err := io.ReadAll(req.Body)
	f.mu.Lock()
	f.last = req
	f.body = raw
	f.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("save uploaded file: %w", err)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{
		ID:           "doc-1",
		Filename:     "doc-1.pdf",
		OriginalName: req.Filename,
		MimeType:     domain.NormalizeMediaType(req.MimeType),
		Size:         int64(len(raw)),
		OwnerID:      req.OwnerID,
		UploadedAt:   fixedNow,
		Status:       domain.StatusPending,
	}, nil
}

type documentsFake struct {
	docs       map[string]domain.Document
	files      map[string]string
	lastFilter domain.ListFilter
	lastPage   domain.PageRequest
	lastOwner  string
	deleted    []string
}

func newDocumentsFake(docs ...domain.Document) *documentsFake {
	f := &documentsFake{docs: map[string]domain.Document{}, files: map[string]string{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *documentsFake) owned(ownerID, id string) (domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.OwnerID != ownerID {
		return domain.Document{}, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, nil
}

func (f *documentsFake) List(_ context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) (domain.DocumentPage, error) {
	f.lastOwner, f.lastFilter, f.lastPage = ownerID, filter, page
	items := make([]domain.Document, 0)
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			items = append(items, d)
		}
	}
	return domain.NewDocumentPage(items, len(items), page), nil
}

func (f *documentsFake) Get(_ context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := f.owned(ownerID, id)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (f *documentsFake) Delete(_ context.Context, ownerID, id string) error {
	if _, err := f.owned(ownerID, id); err != nil {
		return err
	}
	delete(f.docs, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *documentsFake) OpenFile(_ context.Context, ownerID, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := f.owned(ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	return &doc, io.NopCloser(strings.NewReader(f.files[id])), nil
}

type queryFake struct {
	ownerID string
	query   string
	ids     []string
	err     error
}

func (f *queryFake) Answer(_ context.Context, ownerID, query string, documentIDs []string) (*domain.QueryAnswer, error) {
	f.ownerID, f.query, f.ids = ownerID, query, documentIDs
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer query", errors.New("query is required"))
	}
	return &domain.QueryAnswer{Query: query, Response: "You have 2 invoices.", ContextDocuments: 2, Sources: []string{"a.pdf", "b.pdf"}}, nil
}

type analyticsFake struct {
	reportType domain.ReportType
	rng        domain.ReportRange
	period     string
}

func (f *analyticsFake) Dashboard(_ context.Context, ownerID string) (domain.DocumentStats, error) {
	return domain.DocumentStats{TotalDocuments: 3}, nil
}

func (f *analyticsFake) ProcessingQueue(context.Context, string) ([]domain.QueueItem, error) {
	return nil, nil
}

func (f *analyticsFake) Report(_ context.Context, _ string, reportType domain.ReportType, rng domain.ReportRange) (*domain.Report, error) {
	f.reportType, f.rng = reportType, rng
	if reportType == "" {
		reportType = domain.ReportSummary
	}
	if !reportType.Valid() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "build report", fmt.Errorf("unknown report type %q", reportType))
	}
	return &domain.Report{Type: reportType, Range: rng, GeneratedAt: fixedNow, TotalDocuments: 3}, nil
}

func (f *analyticsFake) Trends(_ context.Context, _ string, period string) (*domain.Trends, error) {
	f.period = period
	if period == "bogus" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "trends", errors.New("bad period"))
	}
	return &domain.Trends{Period: "7d", Days: 7, Points: []domain.DailyCount{}}, nil
}

func (f *analyticsFake) Performance(context.Context) (*domain.Performance, error) {
	return &domain.Performance{SystemHealth: domain.HealthIdle}, nil
}

type chatFake struct {
	sessions map[string]domain.ChatSession
	lastUser string
	err      error
}

func newChatFake() *chatFake {
	return &chatFake{sessions: map[string]domain.ChatSession{
		"s1": {ID: "s1", UserID: "u1", CreatedAt: fixedNow, IsActive: true},
	}}
}

func (f *chatFake) SendMessage(_ context.Context, userID, sessionID, content string) (*domain.ChatTurn, error) {
	f.lastUser = userID
	if f.err != nil {
		return nil, f.err
	}
	if strings.TrimSpace(content) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send message", errors.New("content is required"))
	}
	if sessionID == "" {
		sessionID = "s1"
	}
	return &domain.ChatTurn{
		Session:          domain.ChatSession{ID: sessionID, UserID: userID, IsActive: true},
		UserMessage:      domain.ChatMessage{ID: "m1", SessionID: sessionID, Content: content, IsFromUser: true, Timestamp: fixedNow},
		AssistantMessage: domain.ChatMessage{ID: "m2", SessionID: sessionID, Content: "Here is what I found.", Timestamp: fixedNow.Add(time.Second)},
	}, nil
}

func (f *chatFake) CreateSession(_ context.Context, userID string) (*domain.ChatSession, error) {
	s := domain.ChatSession{ID: "s2", UserID: userID, CreatedAt: fixedNow, IsActive: true}
	f.sessions[s.ID] = s
	return &s, nil
}

func (f *chatFake) ListSessions(_ context.Context, userID string) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	for _, s := range f.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *chatFake) DeleteSession(_ context.Context, userID, sessionID string) error {
	s, ok := f.sessions[sessionID]
	if !ok || s.UserID != userID {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", fmt.Errorf("id=%s", sessionID))
	}
	delete(f.sessions, sessionID)
	return nil
}

func (f *chatFake) History(_ context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	if sessionID != "" {
		if s, ok := f.sessions[sessionID]; !ok || s.UserID != userID {
			return nil, domain.WrapError(domain.ErrSessionNotFound, "history", fmt.Errorf("id=%s", sessionID))
		}
	}
	return nil, nil
}

type exporterFake struct{}

func (exporterFake) Export(w io.Writer, report *domain.Report) error {
	_, err := fmt.Fprintf(w, "report:%s", report.Type)
	return err
}

func (exporterFake) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (exporterFake) FileName(report *domain.Report) string {
	return "findoc-" + string(report.Type) + ".xlsx"
}

type testEnv struct {
	ingest    *ingestFake
	documents *documentsFake
	query     *queryFake
	analytics *analyticsFake
	chat      *chatFake
	handler   http.Handler
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	return cfg
}

func newTestEnv(cfg config.Config, docs ...domain.Document) *testEnv {
	env := &testEnv{
		ingest:    &ingestFake{},
		documents: newDocumentsFake(docs...),
		query:     &queryFake{},
		analytics: &analyticsFake{},
		chat:      newChatFake(),
	}
	env.handler = NewRouter(cfg, Services{
		Ingestor:  env.ingest,
		Documents: env.documents,
		Query:     env.query,
		Analytics: env.analytics,
		Chat:      env.chat,
		Exporter:  exporterFake{},
	}).Handler()
	return env
}
