package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func newPendingDoc(t *testing.T, id, owner string, uploadedAt time.Time) *domain.Document {
	t.Helper()
	doc, err := domain.NewDocument(domain.NewDocumentMeta{
		ID:           id,
		Filename:     id + ".pdf",
		OriginalName: "orig-" + id + ".pdf",
		MimeType:     "application/pdf",
		Size:         1024,
		OwnerID:      owner,
		UploadedAt:   uploadedAt,
	})
	if err != nil {
		t.Fatalf("NewDocument() error = %v", err)
	}
	return &doc
}

func statusPtr(s domain.DocumentStatus) *domain.DocumentStatus { return &s }

func TestDocumentStoreCreateGetReturnsCopies(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	doc := newPendingDoc(t, "doc-1", "u1", time.Now())
	if err := store.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.GetByID(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	got.Status = domain.StatusFailed

	again, _ := store.GetByID(ctx, "doc-1")
	if again.Status != domain.StatusPending {
		t.Fatalf("store state leaked through returned pointer: %s", again.Status)
	}
}

func TestDocumentStoreUpdateMissingIDReturnsNotFound(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	_, err := store.Update(context.Background(), "missing", domain.DocumentPatch{Status: statusPtr(domain.StatusProcessing)})
	if !domain.IsKind(err, domain.ErrDocumentNotFound) || !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestDocumentStoreStatusNeverRegresses(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	if err := store.Create(ctx, newPendingDoc(t, "doc-1", "u1", time.Now())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.Update(ctx, "doc-1", domain.DocumentPatch{Status: statusPtr(domain.StatusProcessing)}); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	done, err := store.Update(ctx, "doc-1", domain.DocumentPatch{Status: statusPtr(domain.StatusFailed)})
	if err != nil {
		t.Fatalf("to failed: %v", err)
	}
	if done.ProcessedAt == nil {
		t.Fatalf("terminal document must carry processedAt")
	}

	if _, err := store.Update(ctx, "doc-1", domain.DocumentPatch{Status: statusPtr(domain.StatusProcessing)}); !domain.IsKind(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	got, _ := store.GetByID(ctx, "doc-1")
	if got.Status != domain.StatusFailed {
		t.Fatalf("status regressed to %s", got.Status)
	}
}

func TestDocumentStoreConcurrentUpdatesDifferentIDs(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	const n = 50
	for i := 0; i < n; i++ {
		if err := store.Create(ctx, newPendingDoc(t, fmt.Sprintf("doc-%d", i), "u1", time.Now())); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			text := "text-" + id
			_, _ = store.Update(ctx, id, domain.DocumentPatch{Status: statusPtr(domain.StatusProcessing)})
			_, _ = store.Update(ctx, id, domain.DocumentPatch{Status: statusPtr(domain.StatusCompleted), OCRText: &text})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%d", i)
		doc, err := store.GetByID(ctx, id)
		if err != nil {
			t.Fatalf("GetByID(%s) error = %v", id, err)
		}
		if doc.Status != domain.StatusCompleted || doc.OCRText == nil || *doc.OCRText != "text-"+id {
			t.Fatalf("cross-contaminated document %s: %+v", id, doc)
		}
	}
}

func TestDocumentStoreListFiltersAndPaginates(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		if err := store.Create(ctx, newPendingDoc(t, fmt.Sprintf("doc-%02d", i), "u1", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if err := store.Create(ctx, newPendingDoc(t, "other", "u2", base)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	items, total, err := store.List(ctx, "u1", domain.ListFilter{}, domain.PageRequest{Page: 2, Limit: 10})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 25 || len(items) != 10 {
		t.Fatalf("expected 10 of 25, got %d of %d", len(items), total)
	}
	if items[0].ID != "doc-14" || items[9].ID != "doc-05" {
		t.Fatalf("unexpected page 2 window: %s..%s", items[0].ID, items[9].ID)
	}

	items, total, err = store.List(ctx, "u1", domain.ListFilter{}, domain.PageRequest{Page: 9, Limit: 10})
	if err != nil || len(items) != 0 || total != 25 {
		t.Fatalf("page beyond last: items=%d total=%d err=%v", len(items), total, err)
	}

	items, _, err = store.List(ctx, "u1", domain.ListFilter{}, domain.PageRequest{Page: 92233720368547760, Limit: 100})
	if err != nil || len(items) != 0 {
		t.Fatalf("far page: items=%d err=%v", len(items), err)
	}

	items, total, _ = store.List(ctx, "u1", domain.ListFilter{Search: "ORIG-DOC-03"}, domain.PageRequest{})
	if total != 1 || items[0].ID != "doc-03" {
		t.Fatalf("search by filename failed: total=%d", total)
	}
}

func TestDocumentStoreDeleteRemovesFromOwnerIndex(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	if err := store.Create(ctx, newPendingDoc(t, "doc-1", "u1", time.Now())); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("second delete expected not found, got %v", err)
	}
	docs, _ := store.ListByOwner(ctx, "u1", 0)
	if len(docs) != 0 {
		t.Fatalf("deleted document still listed")
	}
	if _, err := store.Update(ctx, "doc-1", domain.DocumentPatch{Status: statusPtr(domain.StatusCompleted)}); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("update after delete must report not found, got %v", err)
	}
	if _, err := store.GetByID(ctx, "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("deleted document resurrected")
	}
}

func TestDocumentStoreRecentlyCompletedNewestFirst(t *testing.T) {
	store := NewDocumentStore(time.UTC)
	ctx := context.Background()
	clock := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, newPendingDoc(t, id, "u1", clock)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		_, _ = store.Update(ctx, id, domain.DocumentPatch{Status: statusPtr(domain.StatusProcessing)})
		clock = clock.Add(time.Minute)
		if _, err := store.Update(ctx, id, domain.DocumentPatch{Status: statusPtr(domain.StatusCompleted)}); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}

	docs, err := store.RecentlyCompleted(ctx, 2)
	if err != nil {
		t.Fatalf("RecentlyCompleted() error = %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "c" || docs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", docs)
	}
}
