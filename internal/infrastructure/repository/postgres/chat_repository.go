package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_sessions (id, user_id, created_at, is_active)
VALUES ($1,$2,$3,$4)
`, session.ID, session.UserID, session.CreatedAt.UTC(), session.IsActive)
	if err != nil {
		return fmt.Errorf("insert chat session: %w", err)
	}
	return nil
}

func (r *ChatRepository) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	var session domain.ChatSession
	err := r.db.QueryRowContext(ctx, `
SELECT id, user_id, created_at, is_active
FROM chat_sessions
WHERE id = $1
`, id).Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
		}
		return nil, fmt.Errorf("scan chat session: %w", err)
	}
	return &session, nil
}

func (r *ChatRepository) ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, created_at, is_active
FROM chat_sessions
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("query chat sessions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatSession, 0)
	for rows.Next() {
		var session domain.ChatSession
		if err := rows.Scan(&session.ID, &session.UserID, &session.CreatedAt, &session.IsActive); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat sessions: %w", err)
	}
	return out, nil
}

// DeleteSession removes the session; messages go with it through ON DELETE CASCADE.
func (r *ChatRepository) DeleteSession(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete chat session rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, message *domain.ChatMessage) error {
	var contextJSON []byte
	if message.DocumentContext != nil {
		raw, err := json.Marshal(message.DocumentContext)
		if err != nil {
			return fmt.Errorf("marshal document context: %w", err)
		}
		contextJSON = raw
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, session_id, content, is_from_user, created_at, document_context)
VALUES ($1,$2,$3,$4,$5,$6)
`, message.ID, message.SessionID, message.Content, message.IsFromUser, message.Timestamp.UTC(), contextJSON)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	return r.queryMessages(ctx, `
SELECT id, session_id, content, is_from_user, created_at, document_context
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at ASC, id ASC
`, sessionID)
}

// RecentMessages fetches the newest rows and returns them oldest first.
func (r *ChatRepository) RecentMessages(ctx context.Context, sessionID string, limit int) ([]domain.ChatMessage, error) {
	messages, err := r.queryMessages(ctx, `
SELECT id, session_id, content, is_from_user, created_at, document_context
FROM chat_messages
WHERE session_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2
`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *ChatRepository) ListUserMessages(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	return r.queryMessages(ctx, `
SELECT m.id, m.session_id, m.content, m.is_from_user, m.created_at, m.document_context
FROM chat_messages m
JOIN chat_sessions s ON s.id = m.session_id
WHERE s.user_id = $1
ORDER BY m.created_at ASC, m.id ASC
`, userID)
}

func (r *ChatRepository) queryMessages(ctx context.Context, query string, args ...any) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			msg        domain.ChatMessage
			contextRaw []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Content, &msg.IsFromUser, &msg.Timestamp, &contextRaw); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		if len(contextRaw) > 0 {
			if err := json.Unmarshal(contextRaw, &msg.DocumentContext); err != nil {
				return nil, fmt.Errorf("unmarshal document context: %w", err)
			}
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", err)
	}
	return out, nil
}
