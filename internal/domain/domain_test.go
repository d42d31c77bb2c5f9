package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func TestSealedQuestionVerifies(t *testing.T) {
	q := Question{ID: "Q1", Prompt: "Capital of France?", Type: QuestionText, CorrectAnswer: "Paris", Weight: 10}.Sealed()
	if err := VerifyQuestion(q); err != nil {
		t.Fatalf("sealed question should verify: %v", err)
	}

	tampered := q
	tampered.CorrectAnswer = "Lyon"
	if err := VerifyQuestion(tampered); err != ErrQuestionTampered {
		t.Fatalf("expected tamper error, got %v", err)
	}

	unsealed := q
	unsealed.ContentHash = ""
	if err := VerifyQuestion(unsealed); err != ErrQuestionTampered {
		t.Fatalf("expected tamper error for missing hash, got %v", err)
	}
}

func TestTraceDigestSeparatesFields(t *testing.T) {
	a := TraceDigest([]AnswerSubmission{{QuestionID: "Q1", SubmittedAnswer: "12", ElapsedMillis: 3}})
	b := TraceDigest([]AnswerSubmission{{QuestionID: "Q1", SubmittedAnswer: "1", ElapsedMillis: 23}})
	if a == b {
		t.Fatalf("digests of different traces collide")
	}
	if a != TraceDigest([]AnswerSubmission{{QuestionID: "Q1", SubmittedAnswer: "12", ElapsedMillis: 3}}) {
		t.Fatalf("digest is not deterministic")
	}
}

func TestSessionStateJSON(t *testing.T) {
	raw, err := json.Marshal(StateScored)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(raw) != `"scored"` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	var s SessionState
	if err := json.Unmarshal([]byte(`"finalized"`), &s); err != nil || s != StateFinalized {
		t.Fatalf("unmarshal: state=%v err=%v", s, err)
	}
	if err := json.Unmarshal([]byte(`"done"`), &s); err == nil {
		t.Fatalf("expected error for unknown state")
	}
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&TransitionError{Current: StateOpen, Requested: StateScored}, "invalid_transition"},
		{fmt.Errorf("wrap: %w", ErrInvalidElapsed), "invalid_elapsed"},
		{ErrSessionForbidden, "forbidden"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := Code(tc.err); got != tc.want {
			t.Fatalf("Code(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestCloneSharesNothing(t *testing.T) {
	score := int64(10)
	s := Session{QuestionIDs: []string{"Q1"}, Answers: []AnswerSubmission{{QuestionID: "Q1"}}, Score: &score}
	c := s.Clone()
	c.QuestionIDs[0] = "Q2"
	c.Answers[0].QuestionID = "Q2"
	*c.Score = 99
	if s.QuestionIDs[0] != "Q1" || s.Answers[0].QuestionID != "Q1" || *s.Score != 10 {
		t.Fatalf("clone aliases original: %+v", s)
	}
}
