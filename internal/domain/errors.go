package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when the ledger has no record for a session ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExists is returned when creating a session whose ID is already taken.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionForbidden indicates the session belongs to another player.
	ErrSessionForbidden = errors.New("session belongs to another player")
	// ErrConcurrentUpdate indicates a compare-and-set lost a race it could not converge on.
	ErrConcurrentUpdate = errors.New("session was modified concurrently")

	// ErrIncompleteSubmission means the answers do not cover every session question exactly once.
	ErrIncompleteSubmission = errors.New("incomplete submission")
	// ErrUnknownQuestionReference means an answer names a question outside the session.
	ErrUnknownQuestionReference = errors.New("answer references a question outside the session")
	// ErrInvalidElapsed rejects negative answer timings.
	ErrInvalidElapsed = errors.New("elapsed time must be non-negative")
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNotYetEvaluated means scoring was attempted before a trust verdict existed.
	ErrNotYetEvaluated = errors.New("session has no trust verdict")
	// ErrInvalidSession reports a record that violates the session invariants.
	ErrInvalidSession = errors.New("invalid session")

	// ErrQuestionNotFound is returned by vault implementations on a miss.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrUnknownQuestion is the integrity fault raised when a session references a question the vault lacks.
	ErrUnknownQuestion = errors.New("vault has no such question")
	// ErrQuestionTampered means stored question content no longer matches its content hash.
	ErrQuestionTampered = errors.New("question content hash mismatch")
	// ErrInvalidQuestion rejects question records that break the catalog invariants (e.g. weight <= 0).
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNotEnoughQuestions means the catalog has fewer matching questions than requested.
	ErrNotEnoughQuestions = errors.New("not enough matching questions")
	// ErrCatalogUnavailable means no question catalog is configured for listing or selection.
	ErrCatalogUnavailable = errors.New("question catalog unavailable")
)

// TransitionError names the current and requested state of a rejected transition.
type TransitionError struct {
	Current   SessionState
	Requested SessionState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid session transition from %s to %s", e.Current, e.Requested)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Code maps an error to a stable identifier for sync reports and API bodies.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompleteSubmission):
		return "incomplete_submission"
	case errors.Is(err, ErrUnknownQuestionReference):
		return "unknown_question_reference"
	case errors.Is(err, ErrInvalidElapsed):
		return "invalid_elapsed"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotYetEvaluated):
		return "not_yet_evaluated"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, ErrUnknownQuestion):
		return "unknown_question"
	case errors.Is(err, ErrQuestionTampered):
		return "question_tampered"
	case errors.Is(err, ErrInvalidQuestion):
		return "invalid_question"
	case errors.Is(err, ErrNotEnoughQuestions):
		return "not_enough_questions"
	case errors.Is(err, ErrCatalogUnavailable):
		return "catalog_unavailable"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionExists):
		return "session_exists"
	case errors.Is(err, ErrSessionForbidden):
		return "forbidden"
	case errors.Is(err, ErrConcurrentUpdate):
		return "concurrent_update"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}

// IsValidationFault reports caller errors that must not be retried unchanged.
func IsValidationFault(err error) bool {
	return errors.Is(err, ErrIncompleteSubmission) ||
		errors.Is(err, ErrUnknownQuestionReference) ||
		errors.Is(err, ErrInvalidElapsed) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidSession) ||
		errors.Is(err, ErrNotEnoughQuestions)
}

// IsIntegrityFault reports data-consistency bugs that need operator attention.
func IsIntegrityFault(err error) bool {
	return errors.Is(err, ErrUnknownQuestion) ||
		errors.Is(err, ErrQuestionTampered) ||
		errors.Is(err, ErrInvalidQuestion)
}
