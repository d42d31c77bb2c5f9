package app

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"trivia-scoring-service/internal/domain"
)

// Scorer computes verified scores. Score is a pure function of the session's
// answers and the question snapshot passed in.
type Scorer struct{}

func NewScorer() *Scorer {
	return &Scorer{}
}

// Score grades every answer in submission order. A Rejected verdict keeps the
// computed score but clears eligibility.
func (sc *Scorer) Score(s domain.Session, questions map[string]domain.Question, verdict domain.TrustVerdict) (domain.ScoreReport, error) {
	if s.State != domain.StateSubmitted {
		return domain.ScoreReport{}, &domain.TransitionError{Current: s.State, Requested: domain.StateScored}
	}
	if verdict == "" {
		return domain.ScoreReport{}, domain.ErrNotYetEvaluated
	}

	total := decimal.Zero
	results := make([]domain.AnswerResult, 0, len(s.Answers))
	for _, a := range s.Answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return domain.ScoreReport{}, fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, a.QuestionID)
		}
		res := domain.AnswerResult{QuestionID: a.QuestionID}
		if sc.Matches(q, a.SubmittedAnswer) {
			res.Correct = true
			res.Awarded = q.Weight
			total = total.Add(decimal.NewFromFloat(q.Weight))
		}
		results = append(results, res)
	}

	return domain.ScoreReport{
		Score:    roundHalfUp(total),
		Total:    total.String(),
		Results:  results,
		Eligible: verdict != domain.VerdictRejected,
	}, nil
}

// Matches compares a submitted answer with the canonical one after
// normalizing both according to the question type.
func (sc *Scorer) Matches(q domain.Question, submitted string) bool {
	switch q.Type {
	case domain.QuestionInteger:
		want, errW := parseInteger(q.CorrectAnswer)
		got, errG := parseInteger(submitted)
		if errW == nil {
			return errG == nil && want.Cmp(got) == 0
		}
	case domain.QuestionDecimal:
		want, errW := decimal.NewFromString(strings.TrimSpace(q.CorrectAnswer))
		got, errG := decimal.NewFromString(strings.TrimSpace(submitted))
		if errW == nil {
			return errG == nil && want.Equal(got)
		}
	}
	return normalizeText(submitted) == normalizeText(q.CorrectAnswer)
}

// normalizeText collapses whitespace and case-folds. A Caser is stateful, so
// one is built per call.
func normalizeText(s string) string {
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

func parseInteger(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	n, ok := new(big.Int).SetString(strings.TrimPrefix(s, "+"), 10)
	if !ok {
		return nil, strconv.ErrSyntax
	}
	return n, nil
}

// roundHalfUp rounds a non-negative total to the nearest integer, .5 going up.
func roundHalfUp(total decimal.Decimal) int64 {
	return total.Round(0).IntPart()
}
