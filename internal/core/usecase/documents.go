package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

// DocumentsUseCase serves a user's own documents. Records of other owners are
// reported as not found.
type DocumentsUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
}

func NewDocumentsUseCase(repo ports.DocumentRepository, storage ports.ObjectStorage) *DocumentsUseCase {
	return &DocumentsUseCase{repo: repo, storage: storage}
}

func (uc *DocumentsUseCase) List(ctx context.Context, ownerID string, filter domain.ListFilter, page domain.PageRequest) (domain.DocumentPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return domain.DocumentPage{}, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown status %q", filter.Status))
	}
	if filter.Sort != "" && !domain.ValidSortKey(filter.Sort) {
		return domain.DocumentPage{}, domain.WrapError(domain.ErrInvalidInput, "list documents", fmt.Errorf("unknown sort key %q", filter.Sort))
	}
	filter = filter.WithDefaults()
	page = page.Normalize()

	items, total, err := uc.repo.List(ctx, ownerID, filter, page)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	return domain.NewDocumentPage(items, total, page), nil
}

func (uc *DocumentsUseCase) Get(ctx context.Context, ownerID, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
	}
	return doc, nil
}

// Delete removes the record first, then the stored file. A missing file is logged only.
func (uc *DocumentsUseCase) Delete(ctx context.Context, ownerID, id string) error {
	doc, err := uc.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	if err := uc.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := uc.storage.Delete(ctx, doc.Filename); err != nil {
		if domain.IsKind(err, domain.ErrNotFound) {
			slog.Warn("document_file_missing", "document_id", id, "key", doc.Filename)
		} else {
			slog.Error("document_file_delete_failed", "document_id", id, "key", doc.Filename, "error", err)
		}
	}
	slog.Info("document_deleted", "document_id", id, "owner_id", ownerID)
	return nil
}

func (uc *DocumentsUseCase) OpenFile(ctx context.Context, ownerID, id string) (*domain.Document, io.ReadCloser, error) {
	doc, err := uc.Get(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := uc.storage.Open(ctx, doc.Filename)
	if err != nil {
		return nil, nil, err
	}
	return doc, rc, nil
}
