package usecase

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/storage/localfs"
)

func newIngestEnv(t *testing.T) (*pipelineEnv, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "uploads")
	storage, err := localfs.New(dir)
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	env := newPipelineEnv(t)
	env.storage = storage
	return env, dir
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	return len(entries)
}

func TestIngestUploadStoresUnderGeneratedKey(t *testing.T) {
	env, dir := newIngestEnv(t)
	dispatcher := &dispatchRecorder{}
	uc := NewIngestDocumentUseCase(env.store, env.storage, dispatcher, IngestOptions{MaxUploadBytes: 1024})

	doc, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID:  "u1",
		Filename: "../../etc/Q1 invoice.PDF",
		MimeType: "application/pdf",
		Size:     11,
		Body:     strings.NewReader("%PDF-1.4 hi"),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.Status != domain.StatusPending || doc.OriginalName != "Q1 invoice.PDF" || doc.Size != 11 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Filename != doc.ID+".pdf" {
		t.Fatalf("expected generated storage key, got %s", doc.Filename)
	}
	raw, err := os.ReadFile(filepath.Join(dir, doc.Filename))
	if err != nil || string(raw) != "%PDF-1.4 hi" {
		t.Fatalf("stored file mismatch: %q err=%v", raw, err)
	}
	if len(dispatcher.ids) != 1 || dispatcher.ids[0] != doc.ID {
		t.Fatalf("document was not dispatched: %v", dispatcher.ids)
	}
	if _, err := env.store.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("record not created: %v", err)
	}
}

func TestIngestRejectsUnsupportedMediaType(t *testing.T) {
	env, dir := newIngestEnv(t)
	dispatcher := &dispatchRecorder{}
	uc := NewIngestDocumentUseCase(env.store, env.storage, dispatcher, IngestOptions{})

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID: "u1", Filename: "a.docx", MimeType: "application/msword", Size: 3, Body: strings.NewReader("doc"),
	})
	if !domain.IsKind(err, domain.ErrUnsupportedMediaType) {
		t.Fatalf("expected unsupported media type, got %v", err)
	}
	if countFiles(t, dir) != 0 || len(dispatcher.ids) != 0 {
		t.Fatalf("rejected upload left side effects")
	}
}

func TestIngestAcceptsJPGAlias(t *testing.T) {
	env, _ := newIngestEnv(t)
	uc := NewIngestDocumentUseCase(env.store, env.storage, &dispatchRecorder{}, IngestOptions{})

	doc, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID: "u1", Filename: "r.jpg", MimeType: "image/jpg", Body: bytes.NewReader([]byte{0xff, 0xd8}),
	})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if doc.MimeType != "image/jpeg" || filepath.Ext(doc.Filename) != ".jpg" {
		t.Fatalf("unexpected media type handling: %s %s", doc.MimeType, doc.Filename)
	}
}

func TestIngestRejectsOversizedBodyWithoutRecord(t *testing.T) {
	env, dir := newIngestEnv(t)
	dispatcher := &dispatchRecorder{}
	uc := NewIngestDocumentUseCase(env.store, env.storage, dispatcher, IngestOptions{MaxUploadBytes: 8})

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID: "u1", Filename: "big.pdf", MimeType: "application/pdf", Body: strings.NewReader(strings.Repeat("x", 64)),
	})
	if !domain.IsKind(err, domain.ErrPayloadTooLarge) {
		t.Fatalf("expected payload too large, got %v", err)
	}
	if countFiles(t, dir) != 0 {
		t.Fatalf("oversized file was kept")
	}
	docs, _ := env.store.ListByOwner(context.Background(), "u1", 0)
	if len(docs) != 0 || len(dispatcher.ids) != 0 {
		t.Fatalf("oversized upload created a record")
	}

	_, err = uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID: "u1", Filename: "big.pdf", MimeType: "application/pdf", Size: 9, Body: strings.NewReader("x"),
	})
	if !domain.IsKind(err, domain.ErrPayloadTooLarge) {
		t.Fatalf("declared size over limit expected payload too large, got %v", err)
	}
}

func TestIngestRemovesFileWhenRecordFails(t *testing.T) {
	env, dir := newIngestEnv(t)
	uc := NewIngestDocumentUseCase(env.store, env.storage, &dispatchRecorder{}, IngestOptions{})

	_, err := uc.Upload(context.Background(), ports.UploadRequest{
		OwnerID: "", Filename: "a.pdf", MimeType: "application/pdf", Body: strings.NewReader("%PDF"),
	})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing owner, got %v", err)
	}
	if countFiles(t, dir) != 0 {
		t.Fatalf("file kept after failed record creation")
	}
}
