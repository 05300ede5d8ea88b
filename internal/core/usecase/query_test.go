package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/findoc-assistant/internal/core/domain"
)

func completeDoc(t *testing.T, env *pipelineEnv, id, text string, confidence float64, degraded bool) {
	t.Helper()
	ctx := context.Background()
	if _, err := env.store.Update(ctx, id, domain.DocumentPatch{Status: ptr(domain.StatusProcessing)}); err != nil {
		t.Fatalf("Update(processing) error = %v", err)
	}
	analysis := domain.Analysis{DocumentType: "invoice", Confidence: confidence, Entities: []domain.Entity{}, Degraded: degraded}
	if _, err := env.store.Update(ctx, id, domain.DocumentPatch{
		Status:        ptr(domain.StatusCompleted),
		DocumentType:  ptr("invoice"),
		ExtractedData: &analysis,
		OCRText:       ptr(text),
	}); err != nil {
		t.Fatalf("Update(completed) error = %v", err)
	}
}

func TestQueryAnswerUsesDocumentsWithText(t *testing.T) {
	env := newPipelineEnv(t)
	for _, id := range []string{"a", "b", "c", "d"} {
		env.seed(t, id, "u1")
	}
	env.seed(t, "x", "u2")
	completeDoc(t, env, "a", "Invoice A total 10", 0.8, false)
	completeDoc(t, env, "b", "Invoice B total 20", 0.4, false)
	completeDoc(t, env, "c", "Scan", 0, true)
	completeDoc(t, env, "x", "Someone else's invoice", 0.9, false)

	responder := &responderFake{reply: "Total is 30."}
	uc := NewQueryUseCase(env.store, responder, 50)

	answer, err := uc.Answer(context.Background(), "u1", " what is the total? ", nil)
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if answer.Query != "what is the total?" || answer.Response != "Total is 30." {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answer.ContextDocuments != 3 || len(answer.Sources) != 3 {
		t.Fatalf("expected the 3 documents with text, got %d %v", answer.ContextDocuments, answer.Sources)
	}
	if answer.Confidence == nil || *answer.Confidence < 0.599 || *answer.Confidence > 0.601 {
		t.Fatalf("expected mean confidence 0.6 over non-degraded analyses, got %v", answer.Confidence)
	}

	answer, err = uc.Answer(context.Background(), "u1", "total?", []string{"a", "x", "missing", "a"})
	if err != nil {
		t.Fatalf("Answer() with ids error = %v", err)
	}
	if answer.ContextDocuments != 1 || answer.Sources[0] != "invoice-a.pdf" {
		t.Fatalf("expected only the caller's requested document, got %+v", answer)
	}
}

func TestQueryAnswerValidatesInput(t *testing.T) {
	env := newPipelineEnv(t)
	uc := NewQueryUseCase(env.store, &responderFake{}, 0)
	if _, err := uc.Answer(context.Background(), "u1", "   ", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	answer, err := uc.Answer(context.Background(), "u1", "anything?", nil)
	if err != nil || answer.ContextDocuments != 0 || answer.Confidence != nil || answer.Sources == nil {
		t.Fatalf("unexpected empty-context answer: %+v err=%v", answer, err)
	}
}
