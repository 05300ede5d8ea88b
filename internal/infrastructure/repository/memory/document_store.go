package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

// DocumentStore keeps documents in process memory. Every operation holds the store
// mutex, which makes updates atomic per record and never hands out shared pointers.
type DocumentStore struct {
	mu      sync.RWMutex
	docs    map[string]domain.Document
	byOwner map[string]map[string]struct{}

	loc *time.Location
	now func() time.Time
}

func NewDocumentStore(loc *time.Location) *DocumentStore {
	if loc == nil {
		loc = time.UTC
	}
	return &DocumentStore{
		docs:    make(map[string]domain.Document),
		byOwner: make(map[string]map[string]struct{}),
		loc:     loc,
		now:     time.Now,
	}
}

func (s *DocumentStore) Create(_ context.Context, doc *domain.Document) error {
	if doc == nil || doc.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("document id is required"))
	}
	if doc.Status != domain.StatusPending {
		return domain.WrapError(domain.ErrInvalidInput, "create document", fmt.Errorf("new documents must be pending, got %q", doc.Status))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "create document", fmt.Errorf("document %s already exists", doc.ID))
	}
	s.docs[doc.ID] = doc.Clone()
	owned, ok := s.byOwner[doc.OwnerID]
	if !ok {
		owned = make(map[string]struct{})
		s.byOwner[doc.OwnerID] = owned
	}
	owned[doc.ID] = struct{}{}
	return nil
}

func (s *DocumentStore) GetByID(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	out := doc.Clone()
	return &out, nil
}

func (s *DocumentStore) List(_ context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) ([]domain.Document, int, error) {
	page = page.Normalize()
	filter = filter.WithDefaults()

	s.mu.RLock()
	matched := make([]domain.Document, 0, len(s.byOwner[ownerID]))
	for id := range s.byOwner[ownerID] {
		doc := s.docs[id]
		if filter.Matches(doc) {
			matched = append(matched, doc.Clone())
		}
	}
	s.mu.RUnlock()

	domain.SortDocuments(matched, filter)
	return domain.Paginate(matched, page), len(matched), nil
}

func (s *DocumentStore) Update(_ context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	next, err := domain.ApplyPatch(current, patch, s.now())
	if err != nil {
		return nil, err
	}
	s.docs[id] = next
	out := next.Clone()
	return &out, nil
}

func (s *DocumentStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	delete(s.docs, id)
	if owned := s.byOwner[doc.OwnerID]; owned != nil {
		delete(owned, id)
		if len(owned) == 0 {
			delete(s.byOwner, doc.OwnerID)
		}
	}
	return nil
}

// ListByOwner returns the owner's most recently uploaded documents; limit <= 0 means all.
func (s *DocumentStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]domain.Document, error) {
	docs := s.snapshot(ownerID)
	domain.SortDocuments(docs, domain.ListFilter{}.WithDefaults())
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *DocumentStore) RecentlyCompleted(_ context.Context, limit int) ([]domain.Document, error) {
	s.mu.RLock()
	docs := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.Status == domain.StatusCompleted && doc.ProcessedAt != nil {
			docs = append(docs, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ProcessedAt.After(*docs[j].ProcessedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (s *DocumentStore) ListUnfinished(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	docs := make([]domain.Document, 0)
	for _, doc := range s.docs {
		if doc.Status == domain.StatusPending || doc.Status == domain.StatusProcessing {
			docs = append(docs, doc.Clone())
		}
	}
	s.mu.RUnlock()

	domain.SortDocuments(docs, domain.ListFilter{Sort: domain.SortUploadedAt})
	return docs, nil
}

func (s *DocumentStore) Stats(_ context.Context, ownerID string, now time.Time) (domain.DocumentStats, error) {
	return domain.BuildStats(s.snapshot(ownerID), now, s.loc), nil
}

func (s *DocumentStore) ProcessingQueue(_ context.Context, ownerID string) ([]domain.QueueItem, error) {
	docs := s.snapshot(ownerID)
	domain.SortDocuments(docs, domain.ListFilter{Sort: domain.SortUploadedAt})
	return domain.BuildProcessingQueue(docs), nil
}

func (s *DocumentStore) snapshot(ownerID string) []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.byOwner[ownerID]))
	for id := range s.byOwner[ownerID] {
		out = append(out, s.docs[id].Clone())
	}
	return out
}
