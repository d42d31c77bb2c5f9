package app

import (
	"fmt"
	"time"

	"trivia-scoring-service/internal/domain"
)

// Submit moves an Open session to Submitted with the given answers.
func Submit(s domain.Session, answers []domain.AnswerSubmission, now time.Time) (domain.Session, error) {
	if s.State != domain.StateOpen {
		return s, &domain.TransitionError{Current: s.State, Requested: domain.StateSubmitted}
	}
	if err := checkAnswers(s.QuestionIDs, answers, true); err != nil {
		return s, err
	}
	next := s.Clone()
	next.Answers = append([]domain.AnswerSubmission(nil), answers...)
	next.State = domain.StateSubmitted
	next.SubmittedAt = &now
	return next, nil
}

// MarkScored moves a Submitted session to Scored. Verdict, score and
// eligibility are written here and nowhere else.
func MarkScored(s domain.Session, verdict domain.TrustVerdict, report domain.ScoreReport, now time.Time) (domain.Session, error) {
	if s.State != domain.StateSubmitted {
		return s, &domain.TransitionError{Current: s.State, Requested: domain.StateScored}
	}
	if verdict == "" {
		return s, domain.ErrNotYetEvaluated
	}
	next := s.Clone()
	score := report.Score
	next.Score = &score
	next.Verdict = verdict
	next.Eligible = report.Eligible
	next.Results = append([]domain.AnswerResult(nil), report.Results...)
	next.State = domain.StateScored
	next.ScoredAt = &now
	return next, nil
}

// Finalize moves a Scored session to Finalized. Finalizing an already
// finalized session returns it unchanged with changed=false.
func Finalize(s domain.Session, now time.Time) (next domain.Session, changed bool, err error) {
	switch s.State {
	case domain.StateFinalized:
		return s, false, nil
	case domain.StateScored:
		next = s.Clone()
		next.State = domain.StateFinalized
		next.FinalizedAt = &now
		return next, true, nil
	default:
		return s, false, &domain.TransitionError{Current: s.State, Requested: domain.StateFinalized}
	}
}

// CanTransition reports whether from -> to is a sanctioned lifecycle step.
func CanTransition(from, to domain.SessionState) bool {
	switch {
	case from == domain.StateFinalized && to == domain.StateFinalized:
		return true
	case !from.Valid() || !to.Valid():
		return false
	default:
		return to == from+1
	}
}

// ValidateSession checks the structural invariants of a session record,
// typically one received from an offline client.
func ValidateSession(s domain.Session) error {
	if s.ID == "" {
		return fmt.Errorf("%w: missing id", domain.ErrInvalidSession)
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state", domain.ErrInvalidSession)
	}
	if len(s.QuestionIDs) == 0 {
		return fmt.Errorf("%w: no questions", domain.ErrInvalidSession)
	}
	seen := make(map[string]struct{}, len(s.QuestionIDs))
	for _, id := range s.QuestionIDs {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: question %q listed twice", domain.ErrInvalidSession, id)
		}
		seen[id] = struct{}{}
	}
	if len(s.Answers) > len(s.QuestionIDs) {
		return fmt.Errorf("%w: more answers than questions", domain.ErrIncompleteSubmission)
	}
	if s.State == domain.StateOpen {
		return checkAnswers(s.QuestionIDs, s.Answers, false)
	}
	return checkAnswers(s.QuestionIDs, s.Answers, true)
}

func checkAnswers(questionIDs []string, answers []domain.AnswerSubmission, complete bool) error {
	if complete && len(answers) != len(questionIDs) {
		return fmt.Errorf("%w: %d answers for %d questions", domain.ErrIncompleteSubmission, len(answers), len(questionIDs))
	}
	if len(answers) > len(questionIDs) {
		return fmt.Errorf("%w: %d answers for %d questions", domain.ErrIncompleteSubmission, len(answers), len(questionIDs))
	}
	members := make(map[string]bool, len(questionIDs))
	for _, id := range questionIDs {
		members[id] = false
	}
	for _, a := range answers {
		answered, ok := members[a.QuestionID]
		if !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownQuestionReference, a.QuestionID)
		}
		if answered {
			return fmt.Errorf("%w: question %q answered twice", domain.ErrIncompleteSubmission, a.QuestionID)
		}
		if a.ElapsedMillis < 0 {
			return fmt.Errorf("%w: question %q", domain.ErrInvalidElapsed, a.QuestionID)
		}
		members[a.QuestionID] = true
	}
	return nil
}
