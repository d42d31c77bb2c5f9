package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"trivia-scoring-service/internal/domain"
	"trivia-scoring-service/internal/infra/memory"
)

func TestQuestionVaultCachesInRedis(t *testing.T) {
	mr, client := newClient(t)

	loader := &countingLoader{QuestionLoader: memory.NewStaticQuestionLoader(sampleQuestion())}
	vault := NewQuestionVault(client, loader, time.Minute)

	q, err := vault.GetQuestion(context.Background(), "q-capital")
	if err != nil {
		t.Fatalf("get question: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("question:q-capital") {
		t.Fatalf("expected question hash in redis")
	}

	// Second call should hit cache, loader not incremented.
	again, err := vault.GetQuestion(context.Background(), "q-capital")
	if err != nil {
		t.Fatalf("get question 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if again != q {
		t.Fatalf("cached question differs: %+v vs %+v", again, q)
	}
}

func TestQuestionVaultDetectsTamperedCache(t *testing.T) {
	mr, client := newClient(t)
	vault := NewQuestionVault(client, memory.NewStaticQuestionLoader(sampleQuestion()), time.Minute)

	if _, err := vault.GetQuestion(context.Background(), "q-capital"); err != nil {
		t.Fatalf("get question: %v", err)
	}
	mr.HSet("question:q-capital", "answer", "Lyon")

	_, err := vault.GetQuestion(context.Background(), "q-capital")
	if !errors.Is(err, domain.ErrQuestionTampered) {
		t.Fatalf("expected tampered error, got %v", err)
	}

	if err := vault.Invalidate(context.Background(), "q-capital"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := vault.GetQuestion(context.Background(), "q-capital"); err != nil {
		t.Fatalf("expected reload after invalidate, got %v", err)
	}
}

type countingLoader struct {
	memory.QuestionLoader
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
		Weight:        1.5,
	}.Sealed()
}
