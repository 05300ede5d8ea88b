package ollama

import (
	"context"
	"log/slog"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

const (
	ChatFallbackReply  = "I'm sorry, I encountered an error. Please try again."
	QueryFallbackReply = "I'm sorry, I encountered an error while processing your query. Please try again."
)

type ChatResponder struct {
	client *Client
}

func NewChatResponder(client *Client) *ChatResponder {
	return &ChatResponder{client: client}
}

func (r *ChatResponder) GenerateChatResponse(ctx context.Context, message string, documents []domain.ContextDocument, history []domain.ChatMessage) string {
	reply, err := r.client.chat(ctx, "chat", chatRequest{
		Messages: buildChatMessages(message, documents, history),
		Options:  r.client.options(r.client.cfg.ChatTemperature),
	})
	if err != nil || reply == "" {
		slog.Warn("chat_response_fallback", "error", err, "empty", reply == "")
		return ChatFallbackReply
	}
	return reply
}

func (r *ChatResponder) AnswerQuery(ctx context.Context, query string, documents []domain.ContextDocument) string {
	answer, err := r.client.generate(ctx, "query", generateRequest{
		Prompt:  buildQueryPrompt(query, documents),
		Options: r.client.options(r.client.cfg.Temperature),
	})
	if err != nil || answer == "" {
		slog.Warn("query_response_fallback", "error", err, "empty", answer == "")
		return QueryFallbackReply
	}
	return answer
}
