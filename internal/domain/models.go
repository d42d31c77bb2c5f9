package domain

import "time"

// QuestionType selects how submitted answers are normalized before comparison.
type QuestionType string

const (
	QuestionText    QuestionType = "text"
	QuestionInteger QuestionType = "integer"
	QuestionDecimal QuestionType = "decimal"
	QuestionChoice  QuestionType = "choice"
)

// Question is the canonical, immutable record held by the vault. Mode and
// Difficulty only drive catalog selection and are not part of the content hash.
type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Prompt        string       `json:"prompt" yaml:"prompt"`
	Type          QuestionType `json:"type" yaml:"type"`
	CorrectAnswer string       `json:"correctAnswer" yaml:"correctAnswer"`
	Weight        float64      `json:"weight" yaml:"weight"`
	ContentHash   string       `json:"contentHash" yaml:"contentHash"`
	Mode          string       `json:"mode,omitempty" yaml:"mode"`
	Difficulty    string       `json:"difficulty,omitempty" yaml:"difficulty"`
}

// QuestionFilter selects a page of the question catalog. Empty Mode or
// Difficulty match every question.
type QuestionFilter struct {
	Mode       string
	Difficulty string
	Offset     int
	Limit      int
}

// Matches reports whether q passes the mode and difficulty filters.
func (f QuestionFilter) Matches(q Question) bool {
	return (f.Mode == "" || f.Mode == q.Mode) && (f.Difficulty == "" || f.Difficulty == q.Difficulty)
}

// QuestionPage is one page of catalog questions plus the total match count.
type QuestionPage struct {
	Questions []Question
	Total     int
}

// AnswerSubmission is one answer recorded by a client.
type AnswerSubmission struct {
	QuestionID      string    `json:"questionId"`
	SubmittedAnswer string    `json:"submittedAnswer"`
	ElapsedMillis   int64     `json:"elapsedMillis"`
	ClientTimestamp time.Time `json:"clientTimestamp"`
}

// AnswerResult is the per-question outcome produced by the scorer.
type AnswerResult struct {
	QuestionID string  `json:"questionId"`
	Correct    bool    `json:"correct"`
	Awarded    float64 `json:"awarded"`
}

// Session is one player's attempt at an ordered set of questions.
type Session struct {
	ID          string             `json:"id"`
	PlayerID    string             `json:"playerId"`
	Mode        string             `json:"mode,omitempty"`
	Difficulty  string             `json:"difficulty,omitempty"`
	QuestionIDs []string           `json:"questionIds"`
	Answers     []AnswerSubmission `json:"answers,omitempty"`
	State       SessionState       `json:"state"`
	Score       *int64             `json:"score,omitempty"`
	Verdict     TrustVerdict       `json:"trustVerdict,omitempty"`
	Eligible    bool               `json:"eligible"`
	Results     []AnswerResult     `json:"results,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	SubmittedAt *time.Time         `json:"submittedAt,omitempty"`
	ScoredAt    *time.Time         `json:"scoredAt,omitempty"`
	FinalizedAt *time.Time         `json:"finalizedAt,omitempty"`
}

// Clone returns a copy that shares no slices or pointers with s.
func (s Session) Clone() Session {
	out := s
	out.QuestionIDs = append([]string(nil), s.QuestionIDs...)
	if s.Answers != nil {
		out.Answers = append([]AnswerSubmission(nil), s.Answers...)
	}
	if s.Results != nil {
		out.Results = append([]AnswerResult(nil), s.Results...)
	}
	if s.Score != nil {
		v := *s.Score
		out.Score = &v
	}
	out.SubmittedAt = cloneTime(s.SubmittedAt)
	out.ScoredAt = cloneTime(s.ScoredAt)
	out.FinalizedAt = cloneTime(s.FinalizedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// ScoreReport is the scorer's output for one session.
type ScoreReport struct {
	Score    int64          `json:"score"`
	Total    string         `json:"total"` // exact weighted total before rounding
	Results  []AnswerResult `json:"results"`
	Eligible bool           `json:"eligible"`
}

// TraceRecord fingerprints an accepted session's answer trace for replay detection.
// SubmittedAt is the server time of the Submit transition, never a client clock.
type TraceRecord struct {
	PlayerID    string    `json:"playerId"`
	SessionID   string    `json:"sessionId"`
	Digest      string    `json:"digest"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// Contribution is a finalized, eligible session's claim on the leaderboard.
type Contribution struct {
	SessionID string
	PlayerID  string
	Score     int64
	At        time.Time
}

// LeaderboardEntry is derived from finalized sessions and never edited directly.
type LeaderboardEntry struct {
	PlayerID        string `json:"playerId"`
	BestScore       int64  `json:"bestScore"`
	Rank            int    `json:"rank"`
	SessionsCounted int    `json:"sessionsCounted"`
}

// Leaderboard captures the ordered scoreboard at a point in time.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SubmitResult is returned to callers of SubmitAnswers.
type SubmitResult struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`
	Verdict   TrustVerdict `json:"trustVerdict,omitempty"`
}

// FinalizeResult is returned to callers of FinalizeSession.
type FinalizeResult struct {
	SessionID string `json:"sessionId"`
	Score     int64  `json:"score"`
	Rank      *int   `json:"rank,omitempty"`
	Eligible  bool   `json:"eligible"`
}

// SyncStatus reports what the reconciler did with one incoming session.
type SyncStatus string

const (
	SyncSynced        SyncStatus = "synced"
	SyncAlreadySynced SyncStatus = "already_synced"
	SyncSuperseded    SyncStatus = "superseded"
	SyncFailed        SyncStatus = "failed"
)

// SyncResult is one row of a sync-status report.
type SyncResult struct {
	SessionID string       `json:"sessionId"`
	Status    SyncStatus   `json:"status"`
	State     SessionState `json:"state"`
	Verdict   TrustVerdict `json:"trustVerdict,omitempty"`
	Code      string       `json:"code,omitempty"`
	Message   string       `json:"message,omitempty"`
}
