package usecase

import (
	"context"
	"io"
	"testing"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func TestDocumentsUseCaseHidesForeignDocuments(t *testing.T) {
	env := newPipelineEnv(t)
	env.seed(t, "doc-1", "u1")
	uc := NewDocumentsUseCase(env.store, env.storage)

	if _, err := uc.Get(context.Background(), "u2", "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("foreign Get expected not found, got %v", err)
	}
	if err := uc.Delete(context.Background(), "u2", "doc-1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("foreign Delete expected not found, got %v", err)
	}
	if _, _, err := uc.OpenFile(context.Background(), "u2", "doc-1"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("foreign OpenFile expected not found, got %v", err)
	}
}

func TestDocumentsUseCaseDeleteRemovesRecordAndFile(t *testing.T) {
	env := newPipelineEnv(t)
	env.seed(t, "doc-1", "u1")
	uc := NewDocumentsUseCase(env.store, env.storage)

	doc, rc, err := uc.OpenFile(context.Background(), "u1", "doc-1")
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	raw, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(raw) != "%PDF-1.4 fake" || doc.OriginalName != "invoice-doc-1.pdf" {
		t.Fatalf("unexpected download: %q %s", raw, doc.OriginalName)
	}

	if err := uc.Delete(context.Background(), "u1", "doc-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := env.storage.Open(context.Background(), "doc-1.pdf"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("stored file survived delete: %v", err)
	}
	if err := uc.Delete(context.Background(), "u1", "doc-1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("second delete expected not found, got %v", err)
	}
}

func TestDocumentsUseCaseDeleteToleratesMissingFile(t *testing.T) {
	env := newPipelineEnv(t)
	env.seed(t, "doc-1", "u1")
	_ = env.storage.Delete(context.Background(), "doc-1.pdf")

	if err := NewDocumentsUseCase(env.store, env.storage).Delete(context.Background(), "u1", "doc-1"); err != nil {
		t.Fatalf("Delete() with missing file error = %v", err)
	}
}

func TestDocumentsUseCaseListValidatesAndPaginates(t *testing.T) {
	env := newPipelineEnv(t)
	for _, id := range []string{"a", "b", "c"} {
		env.seed(t, id, "u1")
	}
	uc := NewDocumentsUseCase(env.store, env.storage)

	if _, err := uc.List(context.Background(), "u1", domain.ListFilter{Status: "archived"}, domain.PageRequest{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown status expected invalid input, got %v", err)
	}
	if _, err := uc.List(context.Background(), "u1", domain.ListFilter{Sort: "owner"}, domain.PageRequest{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown sort expected invalid input, got %v", err)
	}

	page, err := uc.List(context.Background(), "u1", domain.ListFilter{}, domain.PageRequest{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 3 || page.Pages != 2 || len(page.Items) != 1 || page.Page != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}

	page, err = uc.List(context.Background(), "u1", domain.ListFilter{}, domain.PageRequest{Page: 5, Limit: 2})
	if err != nil || page.Items == nil || len(page.Items) != 0 {
		t.Fatalf("page past the end must be empty, got %+v err=%v", page, err)
	}
}
