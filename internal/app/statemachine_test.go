package app

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"trivia-scoring-service/internal/domain"
)

func openSession() domain.Session {
	return domain.Session{
		ID:          "s1",
		PlayerID:    "p1",
		QuestionIDs: []string{"q1", "q2"},
		State:       domain.StateOpen,
		CreatedAt:   time.Unix(1_700_000_000, 0),
	}
}

func fullAnswers() []domain.AnswerSubmission {
	return []domain.AnswerSubmission{
		{QuestionID: "q1", SubmittedAnswer: "a", ElapsedMillis: 1000},
		{QuestionID: "q2", SubmittedAnswer: "b", ElapsedMillis: 1000},
	}
}

// Random operation sequences must never move a session backwards or let
// answers outnumber questions.
func TestTransitionsAreMonotonic(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	now := time.Unix(1_700_000_000, 0)
	verdicts := []domain.TrustVerdict{"", domain.VerdictTrusted, domain.VerdictSuspicious, domain.VerdictRejected}
	answerSets := [][]domain.AnswerSubmission{
		nil,
		fullAnswers()[:1],
		fullAnswers(),
		append(fullAnswers(), domain.AnswerSubmission{QuestionID: "q1"}),
	}

	for run := 0; run < 500; run++ {
		s := openSession()
		for step := 0; step < 12; step++ {
			prev := s.State
			var (
				next domain.Session
				err  error
			)
			switch rnd.Intn(3) {
			case 0:
				next, err = Submit(s, answerSets[rnd.Intn(len(answerSets))], now)
			case 1:
				next, err = MarkScored(s, verdicts[rnd.Intn(len(verdicts))], domain.ScoreReport{Score: 1, Eligible: true}, now)
			default:
				next, _, err = Finalize(s, now)
			}
			if err == nil {
				if !CanTransition(prev, next.State) {
					t.Fatalf("run %d: unsanctioned transition %s -> %s", run, prev, next.State)
				}
				s = next
			}
			if s.State < prev {
				t.Fatalf("run %d: state decreased %s -> %s", run, prev, s.State)
			}
			if len(s.Answers) > len(s.QuestionIDs) {
				t.Fatalf("run %d: %d answers for %d questions", run, len(s.Answers), len(s.QuestionIDs))
			}
		}
	}
}

func TestSubmitRejectsBadAnswers(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name    string
		answers []domain.AnswerSubmission
		want    error
	}{
		{"missing", fullAnswers()[:1], domain.ErrIncompleteSubmission},
		{"duplicate", []domain.AnswerSubmission{{QuestionID: "q1"}, {QuestionID: "q1"}}, domain.ErrIncompleteSubmission},
		{"foreign", []domain.AnswerSubmission{{QuestionID: "q1"}, {QuestionID: "zz"}}, domain.ErrUnknownQuestionReference},
		{"negative", []domain.AnswerSubmission{{QuestionID: "q1"}, {QuestionID: "q2", ElapsedMillis: -1}}, domain.ErrInvalidElapsed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Submit(openSession(), tc.answers, now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if got.State != domain.StateOpen {
				t.Fatalf("state changed on failure: %s", got.State)
			}
		})
	}
}

func TestMarkScoredRequiresVerdict(t *testing.T) {
	s, err := Submit(openSession(), fullAnswers(), time.Now())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := MarkScored(s, "", domain.ScoreReport{}, time.Now()); !errors.Is(err, domain.ErrNotYetEvaluated) {
		t.Fatalf("expected not yet evaluated, got %v", err)
	}
}

func TestFinalizeTwiceIsNoop(t *testing.T) {
	now := time.Now()
	s, _ := Submit(openSession(), fullAnswers(), now)
	s, _ = MarkScored(s, domain.VerdictTrusted, domain.ScoreReport{Score: 3, Eligible: true}, now)
	s, changed, err := Finalize(s, now)
	if err != nil || !changed {
		t.Fatalf("expected first finalize to change state, changed=%v err=%v", changed, err)
	}
	again, changed, err := Finalize(s, now.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("expected no-op, changed=%v err=%v", changed, err)
	}
	if !again.FinalizedAt.Equal(*s.FinalizedAt) {
		t.Fatalf("finalizedAt moved on no-op finalize")
	}
}

func TestTransitionErrorNamesStates(t *testing.T) {
	_, _, err := Finalize(openSession(), time.Now())
	var terr *domain.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *TransitionError, got %T", err)
	}
	if terr.Current != domain.StateOpen || terr.Requested != domain.StateFinalized {
		t.Fatalf("unexpected transition error %+v", terr)
	}
}

func TestValidateSession(t *testing.T) {
	s := openSession()
	if err := ValidateSession(s); err != nil {
		t.Fatalf("valid session rejected: %v", err)
	}
	s.Answers = fullAnswers()[:1]
	if err := ValidateSession(s); err != nil {
		t.Fatalf("partial open session rejected: %v", err)
	}
	s.State = domain.StateSubmitted
	if err := ValidateSession(s); !errors.Is(err, domain.ErrIncompleteSubmission) {
		t.Fatalf("expected incomplete submission, got %v", err)
	}
	s.ID = ""
	if err := ValidateSession(s); !errors.Is(err, domain.ErrInvalidSession) {
		t.Fatalf("expected invalid session, got %v", err)
	}
}
