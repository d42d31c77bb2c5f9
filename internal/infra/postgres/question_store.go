package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"trivia-scoring-service/internal/domain"
)

const questionColumns = `id, prompt, type, correct_answer, weight, content_hash, mode, difficulty`

// QuestionStore loads, lists and seeds canonical questions in Postgres.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) LoadQuestion(ctx context.Context, id string) (domain.Question, error) {
	q, err := scanQuestion(s.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
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
	const where = ` WHERE ($1 = '' OR mode = $1) AND ($2 = '' OR difficulty = $2)`
	var page domain.QuestionPage
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM questions`+where,
		filter.Mode, filter.Difficulty).Scan(&page.Total); err != nil {
		return domain.QuestionPage{}, fmt.Errorf("count questions: %w", err)
	}

	var limit *int
	if filter.Limit > 0 {
		limit = &filter.Limit
	}
	rows, err := s.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions`+where+
		` ORDER BY id LIMIT $3 OFFSET $4`, filter.Mode, filter.Difficulty, limit, max(filter.Offset, 0))
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

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, q := range questions {
		batch.Queue(`INSERT INTO questions (`+questionColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO UPDATE SET prompt=EXCLUDED.prompt, type=EXCLUDED.type,
	correct_answer=EXCLUDED.correct_answer, weight=EXCLUDED.weight, content_hash=EXCLUDED.content_hash,
	mode=EXCLUDED.mode, difficulty=EXCLUDED.difficulty`,
			q.ID, q.Prompt, string(q.Type), q.CorrectAnswer, q.Weight, q.ContentHash, q.Mode, q.Difficulty)
	}
	results := tx.SendBatch(ctx, batch)
	for range questions {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("save question: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("save questions: %w", err)
	}
	return tx.Commit(ctx)
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
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
