package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type ChatStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.ChatSession
	messages map[string][]domain.ChatMessage
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		sessions: make(map[string]domain.ChatSession),
		messages: make(map[string][]domain.ChatMessage),
	}
}

func (s *ChatStore) CreateSession(_ context.Context, session *domain.ChatSession) error {
	if session == nil || session.ID == "" || session.UserID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "create chat session", fmt.Errorf("session id and user id are required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.ID]; exists {
		return domain.WrapError(domain.ErrConflict, "create chat session", fmt.Errorf("session %s already exists", session.ID))
	}
	s.sessions[session.ID] = *session
	return nil
}

func (s *ChatStore) GetSession(_ context.Context, id string) (*domain.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return &session, nil
}

// ListSessions returns the user's sessions, newest first.
func (s *ChatStore) ListSessions(_ context.Context, userID string) ([]domain.ChatSession, error) {
	s.mu.RLock()
	out := make([]domain.ChatSession, 0)
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, session)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ChatStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *ChatStore) AppendMessage(_ context.Context, message *domain.ChatMessage) error {
	if message == nil || message.ID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append chat message", fmt.Errorf("message id is required"))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[message.SessionID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, message.SessionID)
	}
	stored := *message
	if message.DocumentContext != nil {
		stored.DocumentContext = append([]domain.ContextDocument(nil), message.DocumentContext...)
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], stored)
	return nil
}

func (s *ChatStore) ListMessages(_ context.Context, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return sortedMessages(s.messages[sessionID]), nil
}

// RecentMessages returns the last limit messages of a session in chronological order.
func (s *ChatStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	all, err := s.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *ChatStore) ListUserMessages(_ context.Context, userID string) ([]domain.ChatMessage, error) {
	s.mu.RLock()
	out := make([]domain.ChatMessage, 0)
	for id, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, s.messages[id]...)
		}
	}
	s.mu.RUnlock()
	return sortedMessages(out), nil
}

func sortedMessages(in []domain.ChatMessage) []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}
