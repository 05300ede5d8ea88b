package domain

import "time"

type ChatSession struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	IsActive  bool      `json:"isActive"`
}

type ChatMessage struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"sessionId"`
	Content         string            `json:"content"`
	IsFromUser      bool              `json:"isFromUser"`
	Timestamp       time.Time         `json:"timestamp"`
	DocumentContext []ContextDocument `json:"documentContext,omitempty"`
}

// ContextDocument is the document metadata handed to the model and snapshotted on replies.
type ContextDocument struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	DocumentType  string         `json:"documentType,omitempty"`
	Status        DocumentStatus `json:"status"`
	TotalValue    *int64         `json:"totalValue,omitempty"`
	ExtractedData *Analysis      `json:"extractedData,omitempty"`
	Text          string         `json:"-"`
}

func NewContextDocument(doc Document) ContextDocument {
	out := ContextDocument{
		ID:       doc.ID,
		Filename: doc.OriginalName,
		Status:   doc.Status,
	}
	if doc.DocumentType != nil {
		out.DocumentType = *doc.DocumentType
	}
	if doc.TotalValue != nil {
		v := *doc.TotalValue
		out.TotalValue = &v
	}
	if doc.ExtractedData != nil {
		a := doc.ExtractedData.Clone()
		out.ExtractedData = &a
	}
	if doc.OCRText != nil {
		out.Text = *doc.OCRText
	}
	return out
}

// Snapshot drops the bulky fields kept only for prompting.
func (c ContextDocument) Snapshot() ContextDocument {
	out := c
	out.ExtractedData = nil
	out.Text = ""
	return out
}

// ChatTurn is the pair of messages persisted by one exchange.
type ChatTurn struct {
	Session          ChatSession `json:"session"`
	UserMessage      ChatMessage `json:"userMessage"`
	AssistantMessage ChatMessage `json:"assistantMessage"`
}

// StatusEvent announces a document status or stage change.
type StatusEvent struct {
	DocumentID string          `json:"documentId"`
	OwnerID    string          `json:"ownerId"`
	Filename   string          `json:"filename"`
	Status     DocumentStatus  `json:"status"`
	Stage      ProcessingStage `json:"stage,omitempty"`
	Progress   int             `json:"progress"`
	At         time.Time       `json:"at"`
}

func NewStatusEvent(doc Document, at time.Time) StatusEvent {
	return StatusEvent{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Filename:   doc.OriginalName,
		Status:     doc.Status,
		Stage:      doc.Stage,
		Progress:   doc.Progress(),
		At:         at.UTC(),
	}
}

// QueryAnswer is the result of a one-shot question over a user's documents.
type QueryAnswer struct {
	Query            string   `json:"query"`
	Response         string   `json:"response"`
	ContextDocuments int      `json:"contextDocuments"`
	Confidence       *float64 `json:"confidence,omitempty"`
	Sources          []string `json:"sources"`
}
