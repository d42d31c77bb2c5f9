package app

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"trivia-scoring-service/internal/domain"
)

// AntiCheatConfig holds the thresholds used to classify a submission trace.
type AntiCheatConfig struct {
	// Per-answer floor: MinAnswerMillis + PerCharMillis*len(prompt) + PerWeightMillis*weight.
	MinAnswerMillis int64
	PerCharMillis   int64
	PerWeightMillis int64
	// Session floor: SessionFloorPerQuestionMillis * len(questionIds).
	SessionFloorPerQuestionMillis int64
	// Timing violations at or above this count reject the session.
	RejectViolations int
	// Identical traces from one player submitted within this window of each other are replays.
	ReplayWindow time.Duration
}

func DefaultAntiCheatConfig() AntiCheatConfig {
	return AntiCheatConfig{
		MinAnswerMillis:               300,
		PerCharMillis:                 10,
		PerWeightMillis:               0,
		SessionFloorPerQuestionMillis: 400,
		RejectViolations:              3,
		ReplayWindow:                  10 * time.Minute,
	}
}

// TimingViolation records one answer submitted faster than its floor.
type TimingViolation struct {
	QuestionID    string `json:"questionId"`
	ElapsedMillis int64  `json:"elapsedMillis"`
	FloorMillis   int64  `json:"floorMillis"`
}

// Evaluation is the evaluator's verdict plus the evidence behind it.
type Evaluation struct {
	Verdict    domain.TrustVerdict
	Digest     string
	Violations []TimingViolation
	Reason     string
}

// AntiCheatEvaluator screens submitted sessions. It holds no mutable state
// and is safe to share between goroutines.
type AntiCheatEvaluator struct {
	cfg AntiCheatConfig
}

func NewAntiCheatEvaluator(cfg AntiCheatConfig) *AntiCheatEvaluator {
	if cfg.RejectViolations <= 0 {
		cfg.RejectViolations = DefaultAntiCheatConfig().RejectViolations
	}
	return &AntiCheatEvaluator{cfg: cfg}
}

// AnswerFloor is the fastest plausible human answer time for q, in milliseconds.
func (e *AntiCheatEvaluator) AnswerFloor(q domain.Question) int64 {
	floor := e.cfg.MinAnswerMillis + e.cfg.PerCharMillis*int64(utf8.RuneCountInString(q.Prompt))
	if e.cfg.PerWeightMillis > 0 && q.Weight > 0 {
		floor += int64(math.Ceil(q.Weight * float64(e.cfg.PerWeightMillis)))
	}
	return floor
}

// SessionFloor is the minimum total elapsed time for a session of n questions.
func (e *AntiCheatEvaluator) SessionFloor(n int) int64 {
	return e.cfg.SessionFloorPerQuestionMillis * int64(n)
}

// Evaluate classifies a submitted session. prior holds previously accepted
// traces of the same player; questions must contain every answered question.
func (e *AntiCheatEvaluator) Evaluate(s domain.Session, questions map[string]domain.Question, prior []domain.TraceRecord) (Evaluation, error) {
	if s.State != domain.StateSubmitted {
		return Evaluation{}, &domain.TransitionError{Current: s.State, Requested: domain.StateScored}
	}
	if s.SubmittedAt == nil {
		return Evaluation{}, fmt.Errorf("%w: submitted session %s has no submission time", domain.ErrInvalidSession, s.ID)
	}
	ev := Evaluation{Verdict: domain.VerdictTrusted, Digest: domain.TraceDigest(s.Answers)}

	var total int64
	for _, a := range s.Answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return Evaluation{}, fmt.Errorf("%w: %q", domain.ErrUnknownQuestion, a.QuestionID)
		}
		total += a.ElapsedMillis
		// Inclusive bound: answering exactly at the floor passes.
		if floor := e.AnswerFloor(q); a.ElapsedMillis < floor {
			ev.Violations = append(ev.Violations, TimingViolation{
				QuestionID:    a.QuestionID,
				ElapsedMillis: a.ElapsedMillis,
				FloorMillis:   floor,
			})
		}
	}

	if n := len(ev.Violations); n >= e.cfg.RejectViolations {
		ev.Verdict = domain.VerdictRejected
		ev.Reason = fmt.Sprintf("%d answers below timing floor", n)
		return ev, nil
	} else if n > 0 {
		ev.Verdict = domain.VerdictSuspicious
		ev.Reason = fmt.Sprintf("%d answers below timing floor", n)
	}

	if floor := e.SessionFloor(len(s.QuestionIDs)); total < floor {
		ev.Verdict = domain.VerdictRejected
		ev.Reason = fmt.Sprintf("session pace %dms below floor %dms", total, floor)
		return ev, nil
	}

	for _, rec := range prior {
		if rec.SessionID == s.ID || rec.PlayerID != s.PlayerID || rec.Digest != ev.Digest {
			continue
		}
		// Server timestamps only: createdAt of a synced session is client supplied.
		if absDuration(s.SubmittedAt.Sub(rec.SubmittedAt)) <= e.cfg.ReplayWindow {
			ev.Verdict = domain.VerdictRejected
			ev.Reason = "trace replays session " + rec.SessionID
			return ev, nil
		}
	}
	return ev, nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
