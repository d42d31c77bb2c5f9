package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-scoring-service/internal/domain"
)

func TestQuestionVaultCaches(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestion())}
	vault := NewQuestionVault(loader, time.Minute)

	if _, err := vault.GetQuestion(context.Background(), "q-capital"); err != nil {
		t.Fatalf("get question: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := vault.GetQuestion(context.Background(), "q-capital"); err != nil {
		t.Fatalf("get question 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}

	vault.Invalidate("q-capital")
	if _, err := vault.GetQuestion(context.Background(), "q-capital"); err != nil {
		t.Fatalf("get question 3: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.calls)
	}
}

func TestQuestionVaultExpires(t *testing.T) {
	loader := &countingLoader{QuestionLoader: NewStaticQuestionLoader(sampleQuestion())}
	vault := NewQuestionVault(loader, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	vault.clock = func() time.Time { return now }

	_, _ = vault.GetQuestion(context.Background(), "q-capital")
	now = now.Add(2 * time.Minute)
	_, _ = vault.GetQuestion(context.Background(), "q-capital")
	if loader.calls != 2 {
		t.Fatalf("expected expired entry to reload, loader calls %d", loader.calls)
	}
}

func TestQuestionVaultRejectsTamperedContent(t *testing.T) {
	q := sampleQuestion()
	q.CorrectAnswer = "Lyon"
	vault := NewQuestionVault(NewStaticQuestionLoader(q), time.Minute)

	_, err := vault.GetQuestion(context.Background(), "q-capital")
	if !errors.Is(err, domain.ErrQuestionTampered) {
		t.Fatalf("expected tampered error, got %v", err)
	}
}

func TestQuestionVaultMiss(t *testing.T) {
	vault := NewQuestionVault(NewStaticQuestionLoader(), time.Minute)
	_, err := vault.GetQuestion(context.Background(), "nope")
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type countingLoader struct {
	QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestion(ctx, id)
}

func sampleQuestion() domain.Question {
	return domain.Question{
		ID:            "q-capital",
		Prompt:        "Capital of France?",
		Type:          domain.QuestionText,
		CorrectAnswer: "Paris",
		Weight:        1,
	}.Sealed()
}
