package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
)

// HashQuestion computes the content hash over every scoring-relevant field.
func HashQuestion(q Question) string {
	h := sha256.New()
	for _, part := range []string{
		q.ID,
		string(q.Type),
		q.Prompt,
		q.CorrectAnswer,
		strconv.FormatFloat(q.Weight, 'f', -1, 64),
	} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sealed returns q with its content hash filled in.
func (q Question) Sealed() Question {
	q.ContentHash = HashQuestion(q)
	return q
}

// ValidateQuestion checks the record invariants that hold regardless of the hash.
func ValidateQuestion(q Question) error {
	switch {
	case q.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	case !(q.Weight > 0):
		return fmt.Errorf("%w: question %q weight %v must be positive", ErrInvalidQuestion, q.ID, q.Weight)
	}
	switch q.Type {
	case QuestionText, QuestionInteger, QuestionDecimal, QuestionChoice:
		return nil
	}
	return fmt.Errorf("%w: question %q has unknown type %q", ErrInvalidQuestion, q.ID, q.Type)
}

// VerifyQuestion checks that q is valid and still matches its content hash.
func VerifyQuestion(q Question) error {
	if err := ValidateQuestion(q); err != nil {
		return err
	}
	if q.ContentHash == "" || q.ContentHash != HashQuestion(q) {
		return ErrQuestionTampered
	}
	return nil
}

// TraceDigest fingerprints the ordered (questionId, answer, elapsed) trace of a submission.
func TraceDigest(answers []AnswerSubmission) string {
	h := sha256.New()
	for _, a := range answers {
		h.Write([]byte(strconv.Itoa(len(a.QuestionID))))
		h.Write([]byte{':'})
		h.Write([]byte(a.QuestionID))
		h.Write([]byte(strconv.Itoa(len(a.SubmittedAnswer))))
		h.Write([]byte{':'})
		h.Write([]byte(a.SubmittedAnswer))
		h.Write([]byte(strconv.FormatInt(a.ElapsedMillis, 10)))
		h.Write([]byte{';'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
