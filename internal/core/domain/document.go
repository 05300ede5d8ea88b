package domain

import (
	"strings"
	"time"
)

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ProcessingStage is the pipeline step a processing document is currently in.
type ProcessingStage string

const (
	StageExtracting ProcessingStage = "extracting"
	StageAnalyzing  ProcessingStage = "analyzing"
	StagePersisting ProcessingStage = "persisting"
)

const (
	DocumentTypeInvoice            = "invoice"
	DocumentTypeContract           = "contract"
	DocumentTypeReceipt            = "receipt"
	DocumentTypeFinancialStatement = "financial_statement"
	DocumentTypeOther              = "other"
	DocumentTypeUnknown            = "unknown"
)

type Document struct {
	ID            string          `json:"id"`
	Filename      string          `json:"filename"`
	OriginalName  string          `json:"originalName"`
	MimeType      string          `json:"mimeType"`
	Size          int64           `json:"size"`
	OwnerID       string          `json:"ownerId"`
	UploadedAt    time.Time       `json:"uploadedAt"`
	ProcessedAt   *time.Time      `json:"processedAt,omitempty"`
	Status        DocumentStatus  `json:"status"`
	Stage         ProcessingStage `json:"stage,omitempty"`
	DocumentType  *string         `json:"documentType,omitempty"`
	ExtractedData *Analysis       `json:"extractedData,omitempty"`
	OCRText       *string         `json:"ocrText,omitempty"`
	TotalValue    *int64          `json:"totalValue,omitempty"`
}

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	out := d
	if d.ProcessedAt != nil {
		t := *d.ProcessedAt
		out.ProcessedAt = &t
	}
	if d.DocumentType != nil {
		v := *d.DocumentType
		out.DocumentType = &v
	}
	if d.OCRText != nil {
		v := *d.OCRText
		out.OCRText = &v
	}
	if d.TotalValue != nil {
		v := *d.TotalValue
		out.TotalValue = &v
	}
	if d.ExtractedData != nil {
		a := d.ExtractedData.Clone()
		out.ExtractedData = &a
	}
	return out
}

// Progress is a coarse completion indicator derived from status and stage.
func (d Document) Progress() int {
	switch d.Status {
	case StatusCompleted, StatusFailed:
		return 100
	case StatusProcessing:
		switch d.Stage {
		case StageExtracting:
			return 33
		case StageAnalyzing:
			return 66
		case StagePersisting:
			return 90
		}
		return 0
	default:
		return 0
	}
}

// FileKind groups a media type into pdf, image or other.
func FileKind(mimeType string) string {
	switch {
	case mimeType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	default:
		return "other"
	}
}

// NormalizeMediaType lower-cases, strips parameters and folds image/jpg into image/jpeg.
func NormalizeMediaType(mediaType string) string {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		return "image/jpeg"
	}
	return mt
}

// NewDocumentMeta carries the caller-supplied attributes of a new upload.
type NewDocumentMeta struct {
	ID           string
	Filename     string
	OriginalName string
	MimeType     string
	Size         int64
	OwnerID      string
	UploadedAt   time.Time
}

func (m NewDocumentMeta) Validate() error {
	var missing []string
	if strings.TrimSpace(m.OwnerID) == "" {
		missing = append(missing, "owner")
	}
	if strings.TrimSpace(m.Filename) == "" || strings.TrimSpace(m.OriginalName) == "" {
		missing = append(missing, "filename")
	}
	if strings.TrimSpace(m.MimeType) == "" {
		missing = append(missing, "media type")
	}
	if m.Size <= 0 {
		missing = append(missing, "size")
	}
	if len(missing) > 0 {
		return WrapError(ErrInvalidInput, "create document", errMissing(missing))
	}
	return nil
}

// NewDocument builds a pending record with every derived field unset.
func NewDocument(meta NewDocumentMeta) (Document, error) {
	if err := meta.Validate(); err != nil {
		return Document{}, err
	}
	uploadedAt := meta.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	return Document{
		ID:           meta.ID,
		Filename:     meta.Filename,
		OriginalName: meta.OriginalName,
		MimeType:     meta.MimeType,
		Size:         meta.Size,
		OwnerID:      meta.OwnerID,
		UploadedAt:   uploadedAt,
		Status:       StatusPending,
	}, nil
}

type missingFieldsError []string

func (e missingFieldsError) Error() string {
	return "missing required fields: " + strings.Join(e, ", ")
}

func errMissing(fields []string) error {
	return missingFieldsError(fields)
}
