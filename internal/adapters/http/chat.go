package httpadapter

import (
	"net/http"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type chatMessageRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

func (rt *Router) sendChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	turn, err := rt.svc.Chat.SendMessage(r.Context(), UserIDFromRequest(r), req.SessionID, req.Content)
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordChatTurn("http", time.Since(start), err)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

func (rt *Router) chatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := firstQuery(r.URL.Query(), "sessionId", "session_id")
	messages, err := rt.svc.Chat.History(r.Context(), UserIDFromRequest(r), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (rt *Router) createChatSession(w http.ResponseWriter, r *http.Request) {
	session, err := rt.svc.Chat.CreateSession(r.Context(), UserIDFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) listChatSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := rt.svc.Chat.ListSessions(r.Context(), UserIDFromRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.ChatSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (rt *Router) deleteChatSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Chat.DeleteSession(r.Context(), UserIDFromRequest(r), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Chat session deleted successfully"})
}
