package memory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"trivia-scoring-service/internal/domain"
)

func TestLoadCatalogSealsQuestions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	body := `questions:
  - id: q-capital
    prompt: Capital of France?
    correctAnswer: Paris
    weight: 1
    mode: classic
    difficulty: easy
  - id: q-answer
    prompt: "6 x 7?"
    type: integer
    correctAnswer: "42"
    weight: 2
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}

	qs, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(qs))
	}
	if qs[0].Type != domain.QuestionText || qs[0].Mode != "classic" || qs[0].Difficulty != "easy" {
		t.Fatalf("expected text type and catalog tags, got %+v", qs[0])
	}
	for _, q := range qs {
		if err := domain.VerifyQuestion(q); err != nil {
			t.Fatalf("question %s not sealed: %v", q.ID, err)
		}
	}
}

func TestLoadCatalogRejectsBadHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.yaml")
	body := `questions:
  - id: q1
    prompt: p
    correctAnswer: a
    weight: 1
    contentHash: deadbeef
`
	_ = os.WriteFile(path, []byte(body), 0o600)
	if _, err := LoadCatalog(path); !errors.Is(err, domain.ErrQuestionTampered) {
		t.Fatalf("expected tampered error, got %v", err)
	}
}

func TestLoadCatalogRejectsNonPositiveWeight(t *testing.T) {
	for name, weight := range map[string]string{"missing": "", "zero": "    weight: 0\n", "negative": "    weight: -2\n"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "questions.yaml")
			body := "questions:\n  - id: q1\n    prompt: p\n    correctAnswer: a\n" + weight
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write catalog: %v", err)
			}
			if _, err := LoadCatalog(path); !errors.Is(err, domain.ErrInvalidQuestion) {
				t.Fatalf("expected invalid question, got %v", err)
			}
		})
	}
}
