package ollama

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

const analysisSystemPrompt = `You are an expert at analysing financial documents.
Allowed document types: invoice, contract, receipt, financial_statement, other.
Respond with a single JSON object and nothing else.`

const chatSystemPrompt = `You are an AI assistant specialised in financial document analysis.
You help the user understand and query their own financial documents.
Use only the document context below. If the answer is not in the documents, say so.`

const visionPrompt = `Transcribe all text visible in this image exactly as written.
Keep line breaks. Do not add commentary.`

// queryContextChars bounds each document's text in one-shot query prompts.
const queryContextChars = 1000

func buildAnalysisPrompt(text, filename string, maxChars int) string {
	return fmt.Sprintf(`Analyse the document below and extract structured information.

Return JSON with exactly these keys:
{
  "documentType": "invoice|contract|receipt|financial_statement|other",
  "confidence": 0.0,
  "entities": [
    {"kind": "invoice_number|vendor_name|date|due_date|total_amount|currency|...", "value": "string", "confidence": 0.0}
  ],
  "summary": "one or two sentences",
  "totalAmount": 0.0,
  "currency": "ISO 4217 code"
}
Use null for totalAmount when there is no total.

Filename: %s

Document text:
%s
`, filename, truncateRunes(text, maxChars))
}

func buildChatMessages(message string, documents []domain.ContextDocument, history []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(history)+2)
	out = append(out, chatMessage{
		Role:    "system",
		Content: chatSystemPrompt + "\n\nDocuments:\n" + describeDocuments(documents, 0),
	})
	for _, h := range history {
		role := "assistant"
		if h.IsFromUser {
			role = "user"
		}
		out = append(out, chatMessage{Role: role, Content: h.Content})
	}
	return append(out, chatMessage{Role: "user", Content: message})
}

func buildQueryPrompt(query string, documents []domain.ContextDocument) string {
	return fmt.Sprintf(`Based on the following document context, answer the user's question.
If the information is not available in the documents, say so.

Question:
%s

Document context:
%s
Answer:`, query, describeDocuments(documents, queryContextChars))
}

// describeDocuments renders document metadata for a prompt. textChars > 0 also includes
// that much of each document's text.
func describeDocuments(documents []domain.ContextDocument, textChars int) string {
	if len(documents) == 0 {
		return "(the user has no documents)\n"
	}
	var b strings.Builder
	for i, doc := range documents {
		docType := doc.DocumentType
		if docType == "" {
			docType = domain.DocumentTypeUnknown
		}
		fmt.Fprintf(&b, "[%d] id=%s file=%s type=%s status=%s", i+1, doc.ID, doc.Filename, docType, doc.Status)
		if doc.TotalValue != nil {
			fmt.Fprintf(&b, " total=%.2f", float64(*doc.TotalValue)/100)
		}
		b.WriteString("\n")
		if doc.ExtractedData != nil {
			if raw, err := json.Marshal(doc.ExtractedData); err == nil {
				fmt.Fprintf(&b, "extracted: %s\n", raw)
			}
		}
		if textChars > 0 && doc.Text != "" {
			fmt.Fprintf(&b, "text: %s\n", truncateRunes(doc.Text, textChars))
		}
	}
	return b.String()
}
