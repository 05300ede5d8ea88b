package usecase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/repository/memory"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/storage/localfs"
)

type extractorFake struct {
	text  string
	err   error
	calls atomic.Int32
	run   func(ctx context.Context, path string) (domain.Extraction, error)
}

func (f *extractorFake) Extract(ctx context.Context, path, _ string) (domain.Extraction, error) {
	f.calls.Add(1)
	if f.run != nil {
		return f.run(ctx, path)
	}
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return domain.Extraction{Text: f.text, ProvisionalType: domain.DocumentTypeInvoice}, nil
}

type analyzerFake struct {
	result domain.Analysis
	run    func(ctx context.Context, text string) domain.Analysis
}

func (f *analyzerFake) AnalyzeDocument(ctx context.Context, text, _ string) domain.Analysis {
	if f.run != nil {
		return f.run(ctx, text)
	}
	return f.result
}

type responderFake struct {
	mu      sync.Mutex
	reply   string
	message string
	docs    []domain.ContextDocument
	history []domain.ChatMessage
	queries []string
}

func (f *responderFake) GenerateChatResponse(ctx context.Context, message string, docs []domain.ContextDocument, history []domain.ChatMessage) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message, f.docs, f.history = message, docs, history
	return f.reply
}

func (f *responderFake) AnswerQuery(_ context.Context, query string, docs []domain.ContextDocument) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	f.docs = docs
	return f.reply
}

type notifierRecorder struct {
	mu     sync.Mutex
	events []domain.StatusEvent
}

func (n *notifierRecorder) DocumentStatusChanged(_ context.Context, event domain.StatusEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func (n *notifierRecorder) progressions() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, len(n.events))
	for i, e := range n.events {
		out[i] = e.Progress
	}
	return out
}

type observerRecorder struct {
	mu       sync.Mutex
	started  int
	finished []domain.DocumentStatus
	degraded int
}

func (o *observerRecorder) StartDocument() {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *observerRecorder) FinishDocument(status domain.DocumentStatus, _ time.Duration) {
	o.mu.Lock()
	o.finished = append(o.finished, status)
	o.mu.Unlock()
}

func (o *observerRecorder) ObserveQueueLag(time.Duration) {}

func (o *observerRecorder) AnalysisDegraded() {
	o.mu.Lock()
	o.degraded++
	o.mu.Unlock()
}

type dispatchRecorder struct {
	ids []string
}

func (d *dispatchRecorder) Dispatch(id string) { d.ids = append(d.ids, id) }

type pipelineEnv struct {
	store   *memory.DocumentStore
	storage *localfs.Storage
	workDir string
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	storage, err := localfs.New(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	return &pipelineEnv{
		store:   memory.NewDocumentStore(time.UTC),
		storage: storage,
		workDir: t.TempDir(),
	}
}

// seed stores a file and a pending record for it.
func (e *pipelineEnv) seed(t *testing.T, id, owner string) {
	t.Helper()
	key := id + ".pdf"
	if _, err := e.storage.Save(context.Background(), key, strings.NewReader("%PDF-1.4 fake")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc, err := domain.NewDocument(domain.NewDocumentMeta{
		ID:           id,
		Filename:     key,
		OriginalName: "invoice-" + id + ".pdf",
		MimeType:     "application/pdf",
		Size:         13,
		OwnerID:      owner,
		UploadedAt:   time.Now().UTC().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	if err := e.store.Create(context.Background(), &doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
}

func (e *pipelineEnv) status(t *testing.T, id string) *domain.Document {
	t.Helper()
	doc, err := e.store.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID(%s) error = %v", id, err)
	}
	return doc
}

func (e *pipelineEnv) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("working files left behind: %d", len(entries))
	}
}
