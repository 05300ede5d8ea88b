package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

var defaultAllowedMediaTypes = []string{"application/pdf", "image/jpeg", "image/png"}

type IngestOptions struct {
	MaxUploadBytes    int64
	AllowedMediaTypes []string
}

type IngestDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	dispatcher ports.DocumentDispatcher
	maxBytes   int64
	allowed    map[string]struct{}
	now        func() time.Time
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	dispatcher ports.DocumentDispatcher,
	opts IngestOptions,
) *IngestDocumentUseCase {
	types := opts.AllowedMediaTypes
	if len(types) == 0 {
		types = defaultAllowedMediaTypes
	}
	allowed := make(map[string]struct{}, len(types))
	for _, t := range types {
		allowed[domain.NormalizeMediaType(t)] = struct{}{}
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &IngestDocumentUseCase{
		repo:       repo,
		storage:    storage,
		dispatcher: dispatcher,
		maxBytes:   maxBytes,
		allowed:    allowed,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Upload validates and stores the file, records a pending document and hands it to
// the dispatcher. It returns before processing starts.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.Document, error) {
	mediaType := domain.NormalizeMediaType(req.MimeType)
	if _, ok := uc.allowed[mediaType]; !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedMediaType, "upload document", fmt.Errorf("media type %q", req.MimeType))
	}
	if req.Size > uc.maxBytes {
		return nil, uc.tooLarge(req.Size)
	}
	originalName := cleanOriginalName(req.Filename)
	if originalName == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("filename is required"))
	}
	if req.Body == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file body is required"))
	}

	id := uuid.NewString()
	key := id + storageExtension(originalName, mediaType)

	written, err := uc.storage.Save(ctx, key, io.LimitReader(req.Body, uc.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("save uploaded file: %w", err)
	}
	if written > uc.maxBytes {
		uc.discard(ctx, key)
		return nil, uc.tooLarge(written)
	}
	if written == 0 {
		uc.discard(ctx, key)
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload document", errors.New("file is empty"))
	}

	doc, err := domain.NewDocument(domain.NewDocumentMeta{
		ID:           id,
		Filename:     key,
		OriginalName: originalName,
		MimeType:     mediaType,
		Size:         written,
		OwnerID:      req.OwnerID,
		UploadedAt:   uc.now(),
	})
	if err != nil {
		uc.discard(ctx, key)
		return nil, err
	}
	if err := uc.repo.Create(ctx, &doc); err != nil {
		uc.discard(ctx, key)
		return nil, fmt.Errorf("create document record: %w", err)
	}

	uc.dispatcher.Dispatch(doc.ID)
	slog.Info("document_uploaded", "document_id", doc.ID, "owner_id", doc.OwnerID, "media_type", mediaType, "size", written)
	return &doc, nil
}

func (uc *IngestDocumentUseCase) tooLarge(size int64) error {
	return domain.WrapError(domain.ErrPayloadTooLarge, "upload document", fmt.Errorf("%d bytes exceeds limit of %d", size, uc.maxBytes))
}

func (uc *IngestDocumentUseCase) discard(ctx context.Context, key string) {
	if err := uc.storage.Delete(context.WithoutCancel(ctx), key); err != nil && !domain.IsKind(err, domain.ErrNotFound) {
		slog.Warn("upload_cleanup_failed", "key", key, "error", err)
	}
}

// cleanOriginalName keeps only the base name the client sent; it is metadata, never a path.
func cleanOriginalName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := filepath.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func storageExtension(originalName, mediaType string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	switch mediaType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		if ext == ".jpeg" {
			return ext
		}
		return ".jpg"
	}
	return ""
}
