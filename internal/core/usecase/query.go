package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

// QueryUseCase answers one-shot questions without touching chat sessions.
type QueryUseCase struct {
	repo         ports.DocumentRepository
	responder    ports.ChatResponder
	contextLimit int
}

func NewQueryUseCase(repo ports.DocumentRepository, responder ports.ChatResponder, contextLimit int) *QueryUseCase {
	if contextLimit <= 0 {
		contextLimit = 50
	}
	return &QueryUseCase{repo: repo, responder: responder, contextLimit: contextLimit}
}

func (uc *QueryUseCase) Answer(ctx context.Context, ownerID, query string, documentIDs []string) (*domain.QueryAnswer, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "query documents", errors.New("query is required"))
	}

	docs, err := uc.contextDocuments(ctx, ownerID, documentIDs)
	if err != nil {
		return nil, err
	}

	contextDocs := make([]domain.ContextDocument, 0, len(docs))
	sources := make([]string, 0, len(docs))
	var (
		confidenceSum float64
		analysed      int
	)
	for _, doc := range docs {
		if doc.OCRText == nil || strings.TrimSpace(*doc.OCRText) == "" {
			continue
		}
		contextDocs = append(contextDocs, domain.NewContextDocument(doc))
		sources = append(sources, doc.OriginalName)
		if doc.ExtractedData != nil && !doc.ExtractedData.Degraded {
			confidenceSum += doc.ExtractedData.Confidence
			analysed++
		}
	}

	answer := &domain.QueryAnswer{
		Query:            query,
		Response:         uc.responder.AnswerQuery(ctx, query, contextDocs),
		ContextDocuments: len(contextDocs),
		Sources:          sources,
	}
	if analysed > 0 {
		mean := confidenceSum / float64(analysed)
		answer.Confidence = &mean
	}
	return answer, nil
}

func (uc *QueryUseCase) contextDocuments(ctx context.Context, ownerID string, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		docs, err := uc.repo.ListByOwner(ctx, ownerID, uc.contextLimit)
		if err != nil {
			return nil, fmt.Errorf("load context documents: %w", err)
		}
		return docs, nil
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		doc, err := uc.repo.GetByID(ctx, id)
		if err != nil {
			if domain.IsKind(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load context document %s: %w", id, err)
		}
		if doc.OwnerID == ownerID {
			out = append(out, *doc)
		}
	}
	return out, nil
}
