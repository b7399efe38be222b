package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session is not registered.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrInvalidCategory is returned for topics outside the catalog; no provider call is made.
	ErrInvalidCategory = errors.New("invalid quiz category")
	// ErrInvalidDifficulty is returned for difficulties other than easy, medium or hard.
	ErrInvalidDifficulty = errors.New("invalid quiz difficulty")
	// ErrRateLimitExhausted indicates the provider kept answering 429 past the retry budget.
	ErrRateLimitExhausted = errors.New("provider rate limit persisted after retries")
	// ErrNoQuestionsAvailable indicates the provider has no questions for the selection.
	ErrNoQuestionsAvailable = errors.New("no questions available for selection")
	// ErrEmptyQuestionSet is returned when a session is initialized without questions.
	ErrEmptyQuestionSet = errors.New("question set is empty")

	// ErrInvalidTransition is returned when a session call is not valid in the current phase.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoSelection is returned when submitting before an answer has been selected.
	ErrNoSelection = errors.New("no answer selected")
	// ErrUnknownAnswer is returned when selecting a value that is not one of the options.
	ErrUnknownAnswer = errors.New("answer is not an option of the current question")
	// ErrNotFinished is returned when asking for a summary before the session finished.
	ErrNotFinished = errors.New("session not finished")
)

// HTTPError is a non-retryable provider status.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider returned HTTP status %d", e.StatusCode)
}

// TransportError wraps network-level failures talking to the provider.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider unreachable: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage renders err as a message suitable for showing to the player.
func UserMessage(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCategory):
		return "Invalid quiz category selected."
	case errors.Is(err, ErrInvalidDifficulty):
		return "Invalid quiz difficulty selected."
	case errors.Is(err, ErrNoQuestionsAvailable):
		return "Could not find questions for this category and difficulty. Please try a different selection."
	case errors.Is(err, ErrRateLimitExhausted):
		return "Failed to fetch questions: the trivia service is busy, please try again shortly."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("Failed to fetch questions: HTTP error! status: %d", httpErr.StatusCode)
	default:
		return "Failed to fetch questions: " + err.Error()
	}
}
