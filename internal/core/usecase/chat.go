package usecase

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/core/ports"
)

const sessionLockStripes = 32

type ChatOptions struct {
	HistoryWindow     int
	ContextDocuments  int
	SnapshotDocuments int
	ResponseTimeout   time.Duration
}

func (o ChatOptions) normalize() ChatOptions {
	if o.HistoryWindow <= 0 {
		o.HistoryWindow = 10
	}
	if o.ContextDocuments <= 0 {
		o.ContextDocuments = 50
	}
	if o.SnapshotDocuments <= 0 {
		o.SnapshotDocuments = 5
	}
	return o
}

// ChatUseCase runs chat turns grounded in the user's documents.
type ChatUseCase struct {
	chats     ports.ChatRepository
	docs      ports.DocumentRepository
	responder ports.ChatResponder
	opts      ChatOptions
	now       func() time.Time

	// sessionLocks serialize implicit session creation per user within this process.
	sessionLocks [sessionLockStripes]sync.Mutex
}

func NewChatUseCase(chats ports.ChatRepository, docs ports.DocumentRepository, responder ports.ChatResponder, opts ChatOptions) *ChatUseCase {
	return &ChatUseCase{
		chats:     chats,
		docs:      docs,
		responder: responder,
		opts:      opts.normalize(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage persists the user message, asks the responder and persists the reply.
// History is the window of messages before this turn. If the turn fails after the
// user message was stored, that message stays stored.
func (uc *ChatUseCase) SendMessage(ctx context.Context, userID, sessionID, content string) (*domain.ChatTurn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "send chat message", errors.New("content is required"))
	}

	session, err := uc.resolveSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := uc.chats.RecentMessages(ctx, session.ID, uc.opts.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}

	userMsg := domain.ChatMessage{
		ID:         uuid.NewString(),
		SessionID:  session.ID,
		Content:    content,
		IsFromUser: true,
		Timestamp:  uc.after(history),
	}
	if err := uc.chats.AppendMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	docs, err := uc.docs.ListByOwner(ctx, userID, uc.opts.ContextDocuments)
	if err != nil {
		return nil, fmt.Errorf("load context documents: %w", err)
	}
	contextDocs := make([]domain.ContextDocument, len(docs))
	for i, doc := range docs {
		contextDocs[i] = domain.NewContextDocument(doc)
	}

	replyCtx, cancel := withOptionalTimeout(ctx, uc.opts.ResponseTimeout)
	reply := uc.responder.GenerateChatResponse(replyCtx, content, contextDocs, history)
	cancel()

	snapshot := make([]domain.ContextDocument, 0, uc.opts.SnapshotDocuments)
	for i := 0; i < len(contextDocs) && i < uc.opts.SnapshotDocuments; i++ {
		snapshot = append(snapshot, contextDocs[i].Snapshot())
	}

	replyAt := uc.after([]domain.ChatMessage{userMsg})
	assistantMsg := domain.ChatMessage{
		ID:              uuid.NewString(),
		SessionID:       session.ID,
		Content:         reply,
		IsFromUser:      false,
		Timestamp:       replyAt,
		DocumentContext: snapshot,
	}
	if err := uc.chats.AppendMessage(ctx, &assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	return &domain.ChatTurn{Session: *session, UserMessage: userMsg, AssistantMessage: assistantMsg}, nil
}

// resolveSession uses the given session, or the user's newest active one, creating it
// when the user has none.
func (uc *ChatUseCase) resolveSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	if sessionID != "" {
		return uc.ownedSession(ctx, userID, sessionID)
	}
	mu := uc.sessionLock(userID)
	mu.Lock()
	defer mu.Unlock()

	sessions, err := uc.chats.ListSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	for i := range sessions {
		if sessions[i].IsActive {
			return &sessions[i], nil
		}
	}
	return uc.CreateSession(ctx, userID)
}

func (uc *ChatUseCase) sessionLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &uc.sessionLocks[h.Sum32()%sessionLockStripes]
}

// after returns a timestamp strictly later than the last of msgs.
func (uc *ChatUseCase) after(msgs []domain.ChatMessage) time.Time {
	now := uc.now()
	if n := len(msgs); n > 0 && !now.After(msgs[n-1].Timestamp) {
		return msgs[n-1].Timestamp.Add(time.Microsecond)
	}
	return now
}

func (uc *ChatUseCase) CreateSession(ctx context.Context, userID string) (*domain.ChatSession, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create chat session", errors.New("user is required"))
	}
	session := &domain.ChatSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: uc.now(),
		IsActive:  true,
	}
	if err := uc.chats.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create chat session: %w", err)
	}
	slog.Info("chat_session_created", "session_id", session.ID, "user_id", userID)
	return session, nil
}

func (uc *ChatUseCase) ListSessions(ctx context.Context, userID string) ([]domain.ChatSession, error) {
	return uc.chats.ListSessions(ctx, userID)
}

func (uc *ChatUseCase) DeleteSession(ctx context.Context, userID, sessionID string) error {
	if _, err := uc.ownedSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return uc.chats.DeleteSession(ctx, sessionID)
}

// History returns one session's messages, or all of the user's messages when sessionID is empty.
func (uc *ChatUseCase) History(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	if sessionID == "" {
		return uc.chats.ListUserMessages(ctx, userID)
	}
	if _, err := uc.ownedSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return uc.chats.ListMessages(ctx, sessionID)
}

func (uc *ChatUseCase) ownedSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	session, err := uc.chats.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return session, nil
}
