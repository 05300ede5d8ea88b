package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func TestRecentMessagesReturnsChronologicalOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChatRepository(db)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "session_id", "content", "is_from_user", "created_at", "document_context"}).
		AddRow("m3", "s1", "third", true, base.Add(2*time.Second), nil).
		AddRow("m2", "s1", "second", false, base.Add(time.Second), []byte(`[{"id":"d1","filename":"a.pdf","status":"completed"}]`)).
		AddRow("m1", "s1", "first", true, base, nil)
	mock.ExpectQuery("FROM chat_messages").WithArgs("s1", 3).WillReturnRows(rows)

	messages, err := repo.RecentMessages(context.Background(), "s1", 3)
	if err != nil {
		t.Fatalf("RecentMessages() error = %v", err)
	}
	if len(messages) != 3 || messages[0].ID != "m1" || messages[2].ID != "m3" {
		t.Fatalf("unexpected order: %+v", messages)
	}
	if len(messages[1].DocumentContext) != 1 || messages[1].DocumentContext[0].ID != "d1" {
		t.Fatalf("document context not decoded: %+v", messages[1].DocumentContext)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteSessionReturnsDomainNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()
	repo := NewChatRepository(db)

	mock.ExpectExec("DELETE FROM chat_sessions").WithArgs("missing").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteSession(context.Background(), "missing"); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
