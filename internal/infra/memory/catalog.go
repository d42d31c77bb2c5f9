package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"trivia-scoring-service/internal/domain"
)

type catalogFile struct {
	Questions []domain.Question `yaml:"questions"`
}

// LoadCatalog reads a YAML question catalog. Type defaults to text; weight is
// required and must be positive. Questions without a content hash are sealed;
// questions carrying one must match it.
func LoadCatalog(path string) ([]domain.Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Questions))
	out := make([]domain.Question, 0, len(file.Questions))
	for _, q := range file.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("catalog question without id")
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("catalog question %q listed twice", q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Type == "" {
			q.Type = domain.QuestionText
		}
		if err := domain.ValidateQuestion(q); err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		if q.ContentHash == "" {
			q = q.Sealed()
		} else if err := domain.VerifyQuestion(q); err != nil {
			return nil, fmt.Errorf("catalog question %q: %w", q.ID, err)
		}
		out = append(out, q)
	}
	return out, nil
}
