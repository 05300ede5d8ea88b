// Package stub answers for the AI backend when none is configured.
package stub

import (
	"context"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

const (
	ChatReply  = "The AI assistant is not configured. Set OLLAMA_URL to enable chat."
	QueryReply = "The AI assistant is not configured. Set OLLAMA_URL to enable document questions."
)

type Analyzer struct{}

func (Analyzer) AnalyzeDocument(context.Context, string, string) domain.Analysis {
	return domain.DegradedAnalysis("LLM not configured")
}

type ChatResponder struct{}

func (ChatResponder) GenerateChatResponse(context.Context, string, []domain.ContextDocument, []domain.ChatMessage) string {
	return ChatReply
}

func (ChatResponder) AnswerQuery(context.Context, string, []domain.ContextDocument) string {
	return QueryReply
}
