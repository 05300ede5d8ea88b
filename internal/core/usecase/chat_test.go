package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
	"github.com/kirillkom/findoc-assistant/internal/infrastructure/repository/memory"
)

func newChatUC(t *testing.T, env *pipelineEnv, responder *responderFake) (*ChatUseCase, *memory.ChatStore) {
	t.Helper()
	chats := memory.NewChatStore()
	uc := NewChatUseCase(chats, env.store, responder, ChatOptions{HistoryWindow: 4, ContextDocuments: 8, SnapshotDocuments: 5})
	return uc, chats
}

func TestChatSendMessageCreatesSessionAndPersistsTurn(t *testing.T) {
	env := newPipelineEnv(t)
	for i := 0; i < 7; i++ {
		env.seed(t, fmt.Sprintf("doc-%d", i), "u1")
	}
	env.seed(t, "foreign", "u2")
	responder := &responderFake{reply: "You have 7 documents."}
	uc, chats := newChatUC(t, env, responder)

	turn, err := uc.SendMessage(context.Background(), "u1", "", "  how many documents?  ")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !turn.Session.IsActive || turn.Session.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", turn.Session)
	}
	if turn.UserMessage.Content != "how many documents?" || !turn.UserMessage.IsFromUser {
		t.Fatalf("unexpected user message: %+v", turn.UserMessage)
	}
	if turn.AssistantMessage.Content != "You have 7 documents." || turn.AssistantMessage.IsFromUser {
		t.Fatalf("unexpected assistant message: %+v", turn.AssistantMessage)
	}
	if !turn.AssistantMessage.Timestamp.After(turn.UserMessage.Timestamp) {
		t.Fatalf("assistant reply must be ordered after the user message")
	}
	if len(responder.docs) != 7 {
		t.Fatalf("expected the user's 7 documents as context, got %d", len(responder.docs))
	}
	if len(responder.history) != 0 {
		t.Fatalf("current message must not appear in history: %+v", responder.history)
	}
	snapshot := turn.AssistantMessage.DocumentContext
	if len(snapshot) != 5 {
		t.Fatalf("expected top-5 snapshot, got %d", len(snapshot))
	}
	for _, d := range snapshot {
		if d.ExtractedData != nil || d.Text != "" {
			t.Fatalf("snapshot carries bulky fields: %+v", d)
		}
	}

	stored, err := chats.ListMessages(context.Background(), turn.Session.ID)
	if err != nil || len(stored) != 2 || !stored[0].IsFromUser || stored[1].IsFromUser {
		t.Fatalf("unexpected persisted messages: %+v err=%v", stored, err)
	}
}

func TestChatSendMessageReusesActiveSessionAndBoundsHistory(t *testing.T) {
	env := newPipelineEnv(t)
	responder := &responderFake{reply: "ok"}
	uc, chats := newChatUC(t, env, responder)

	first, err := uc.SendMessage(context.Background(), "u1", "", "m0")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	for i := 1; i < 5; i++ {
		turn, err := uc.SendMessage(context.Background(), "u1", "", fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatalf("SendMessage() error = %v", err)
		}
		if turn.Session.ID != first.Session.ID {
			t.Fatalf("expected active session reuse")
		}
	}

	if len(responder.history) != 4 {
		t.Fatalf("expected a 4 message history window, got %d", len(responder.history))
	}
	last := responder.history[len(responder.history)-1]
	if last.IsFromUser || last.Content != "ok" {
		t.Fatalf("history should end with the previous reply, got %+v", last)
	}
	for _, m := range responder.history {
		if m.Content == "m4" {
			t.Fatalf("current message leaked into history")
		}
	}

	sessions, _ := chats.ListSessions(context.Background(), "u1")
	if len(sessions) != 1 {
		t.Fatalf("expected a single session, got %d", len(sessions))
	}
}

func TestChatSendMessageRejectsForeignSession(t *testing.T) {
	env := newPipelineEnv(t)
	uc, _ := newChatUC(t, env, &responderFake{reply: "ok"})

	session, err := uc.CreateSession(context.Background(), "u2")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := uc.SendMessage(context.Background(), "u1", session.ID, "hi"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := uc.History(context.Background(), "u1", session.ID); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected foreign history to be hidden, got %v", err)
	}
	if err := uc.DeleteSession(context.Background(), "u1", session.ID); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected foreign delete to be hidden, got %v", err)
	}
	if _, err := uc.SendMessage(context.Background(), "u1", "", "   "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for blank content, got %v", err)
	}
}

func TestChatHistoryAcrossSessionsAndCascadeDelete(t *testing.T) {
	env := newPipelineEnv(t)
	uc, _ := newChatUC(t, env, &responderFake{reply: "ok"})
	ctx := context.Background()

	a, _ := uc.CreateSession(ctx, "u1")
	time.Sleep(time.Millisecond)
	b, _ := uc.CreateSession(ctx, "u1")
	if _, err := uc.SendMessage(ctx, "u1", a.ID, "in a"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if _, err := uc.SendMessage(ctx, "u1", b.ID, "in b"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	all, err := uc.History(ctx, "u1", "")
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 messages across sessions, got %d err=%v", len(all), err)
	}
	if all[0].Content != "in a" {
		t.Fatalf("history not ordered by time: first=%q", all[0].Content)
	}

	sessions, _ := uc.ListSessions(ctx, "u1")
	if len(sessions) != 2 || sessions[0].ID != b.ID {
		t.Fatalf("expected newest session first")
	}

	if err := uc.DeleteSession(ctx, "u1", a.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, err := uc.History(ctx, "u1", a.ID); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("deleted session still readable: %v", err)
	}
	all, _ = uc.History(ctx, "u1", "")
	if len(all) != 2 {
		t.Fatalf("expected deleted session's messages gone, got %d", len(all))
	}
}

func TestChatConcurrentFirstMessagesShareOneSession(t *testing.T) {
	env := newPipelineEnv(t)
	uc, chats := newChatUC(t, env, &responderFake{reply: "ok"})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := uc.SendMessage(context.Background(), "u1", "", fmt.Sprintf("hello %d", i)); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("SendMessage() error = %v", err)
	}

	sessions, err := chats.ListSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one implicit session, got %d", len(sessions))
	}
	messages, err := chats.ListMessages(context.Background(), sessions[0].ID)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(messages) != 16 {
		t.Fatalf("expected 16 messages in the shared session, got %d", len(messages))
	}
}
