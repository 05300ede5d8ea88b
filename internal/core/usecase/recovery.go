package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

type RecoveryResult struct {
	Redispatched int
	Failed       int
}

// RecoverUnfinished settles documents an earlier process left behind. Pending documents
// are dispatched again. Documents in processing that were uploaded more than staleAfter
// ago are marked failed; younger ones may belong to a live process and are left alone.
func RecoverUnfinished(ctx context.Context, repo ports.DocumentRepository, dispatcher ports.DocumentDispatcher, staleAfter time.Duration, now time.Time) (RecoveryResult, error) {
	var res RecoveryResult
	docs, err := repo.ListUnfinished(ctx)
	if err != nil {
		return res, fmt.Errorf("list unfinished documents: %w", err)
	}

	cutoff := now.Add(-staleAfter)
	for _, doc := range docs {
		switch doc.Status {
		case domain.StatusPending:
			dispatcher.Dispatch(doc.ID)
			res.Redispatched++
		case domain.StatusProcessing:
			if staleAfter > 0 && doc.UploadedAt.After(cutoff) {
				continue
			}
			_, err := repo.Update(ctx, doc.ID, domain.DocumentPatch{Status: ptr(domain.StatusFailed)})
			switch {
			case err == nil:
				res.Failed++
				slog.Warn("stale_processing_failed", "document_id", doc.ID, "uploaded_at", doc.UploadedAt)
			case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrInvalidTransition):
				// finished or deleted since the listing
			default:
				return res, fmt.Errorf("fail stale document %s: %w", doc.ID, err)
			}
		}
	}
	return res, nil
}
