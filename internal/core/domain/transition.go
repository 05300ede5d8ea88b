package domain

import (
	"fmt"
	"time"
)

// DocumentPatch lists the fields an update may change. Nil fields are left untouched.
type DocumentPatch struct {
	Status        *DocumentStatus
	Stage         *ProcessingStage
	ProcessedAt   *time.Time
	DocumentType  *string
	ExtractedData *Analysis
	OCRText       *string
	TotalValue    *int64
}

func (p DocumentPatch) empty() bool {
	return p.Status == nil && p.Stage == nil && p.ProcessedAt == nil && p.DocumentType == nil &&
		p.ExtractedData == nil && p.OCRText == nil && p.TotalValue == nil
}

// CanTransition reports whether a document may move from one status to another.
func CanTransition(from, to DocumentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	default:
		return false
	}
}

// ApplyPatch merges patch into doc. Terminal documents are immutable and processedAt
// is kept set exactly when the resulting status is terminal.
func ApplyPatch(doc Document, patch DocumentPatch, now time.Time) (Document, error) {
	if patch.empty() {
		return doc, nil
	}
	if doc.Status.Terminal() {
		return Document{}, fmt.Errorf("%w: document %s is %s", ErrInvalidTransition, doc.ID, doc.Status)
	}

	out := doc.Clone()
	if patch.Status != nil {
		next := *patch.Status
		if !next.Valid() {
			return Document{}, WrapError(ErrInvalidInput, "apply patch", fmt.Errorf("unknown status %q", next))
		}
		if !CanTransition(doc.Status, next) {
			return Document{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, doc.Status, next)
		}
		out.Status = next
	}
	if patch.Stage != nil {
		out.Stage = *patch.Stage
	}
	if patch.DocumentType != nil {
		v := *patch.DocumentType
		out.DocumentType = &v
	}
	if patch.ExtractedData != nil {
		a := patch.ExtractedData.Clone()
		out.ExtractedData = &a
	}
	if patch.OCRText != nil {
		v := *patch.OCRText
		out.OCRText = &v
	}
	if patch.TotalValue != nil {
		v := *patch.TotalValue
		out.TotalValue = &v
	}

	if out.Status.Terminal() {
		processedAt := now.UTC()
		if patch.ProcessedAt != nil {
			processedAt = patch.ProcessedAt.UTC()
		}
		out.ProcessedAt = &processedAt
		out.Stage = ""
	} else {
		out.ProcessedAt = nil
		if out.Status != StatusProcessing {
			out.Stage = ""
		}
	}
	return out, nil
}
