package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"trivia-scoring-service/internal/domain"
)

const questionColumns = `id, prompt, type, correct_answer, weight, content_hash, mode, difficulty`

type QuestionStore struct {
	db *sql.DB
}

func (s *QuestionStore) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := scanQuestion(s.db.QueryRowContext(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}
	if err := domain.ValidateQuestion(q); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

// ListQuestions pages through the questions matching filter in ID order.
func (s *QuestionStore) ListQuestions(ctx context.Context, filter domain.QuestionFilter) (domain.QuestionPage, error) {
	const where = ` WHERE (?1 = '' OR mode = ?1) AND (?2 = '' OR difficulty = ?2)`
	var page domain.QuestionPage
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`+where,
		filter.Mode, filter.Difficulty).Scan(&page.Total); err != nil {
		return domain.QuestionPage{}, fmt.Errorf("count questions: %w", err)
	}

	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+questionColumns+` FROM questions`+where+
		` ORDER BY id LIMIT ?3 OFFSET ?4`, filter.Mode, filter.Difficulty, limit, max(filter.Offset, 0))
	if err != nil {
		return domain.QuestionPage{}, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return domain.QuestionPage{}, fmt.Errorf("scan question: %w", err)
		}
		page.Questions = append(page.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.QuestionPage{}, fmt.Errorf("list questions: %w", err)
	}
	return page, nil
}

// SaveQuestions upserts questions in one transaction. Invalid questions abort the whole batch.
func (s *QuestionStore) SaveQuestions(ctx context.Context, questions []domain.Question) error {
	for _, q := range questions {
		if err := domain.ValidateQuestion(q); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO questions (`+questionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET prompt=excluded.prompt, type=excluded.type,
	correct_answer=excluded.correct_answer, weight=excluded.weight, content_hash=excluded.content_hash,
	mode=excluded.mode, difficulty=excluded.difficulty`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, q := range questions {
		if _, err := stmt.ExecContext(ctx, q.ID, q.Prompt, string(q.Type), q.CorrectAnswer, q.Weight,
			q.ContentHash, q.Mode, q.Difficulty); err != nil {
			return fmt.Errorf("save question %q: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (domain.Question, error) {
	var (
		q     domain.Question
		qtype string
	)
	if err := row.Scan(&q.ID, &q.Prompt, &qtype, &q.CorrectAnswer, &q.Weight, &q.ContentHash, &q.Mode, &q.Difficulty); err != nil {
		return domain.Question{}, err
	}
	q.Type = domain.QuestionType(qtype)
	return q, nil
}
