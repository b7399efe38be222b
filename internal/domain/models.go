package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuestionsPerSet is the number of questions requested for every session.
const QuestionsPerSet = 10

// Difficulty is the provider difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a raw difficulty identifier.
func ParseDifficulty(raw string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(raw))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, raw)
	}
}

// SetKey identifies a cached question set.
type SetKey struct {
	Topic      string     `json:"topic"`
	Difficulty Difficulty `json:"difficulty"`
}

func (k SetKey) String() string {
	return k.Topic + "-" + string(k.Difficulty)
}

// RawQuestion is a provider record before decoding and shuffling.
type RawQuestion struct {
	Question         string   `json:"question"`
	CorrectAnswer    string   `json:"correct_answer"`
	IncorrectAnswers []string `json:"incorrect_answers"`
}

// Question models a multiple-choice question with exactly one correct answer.
// Options holds the answer order shown to the player; it is fixed at creation.
type Question struct {
	Prompt        string   `json:"prompt"`
	CorrectAnswer string   `json:"correctAnswer"`
	Distractors   []string `json:"distractors"`
	Options       []string `json:"options"`
}

// HasOption reports whether answer is one of the question's options.
func (q Question) HasOption(answer string) bool {
	for _, opt := range q.Options {
		if opt == answer {
			return true
		}
	}
	return false
}

// QuestionSet is an immutable ordered collection of questions.
type QuestionSet struct {
	Key       SetKey     `json:"key"`
	Questions []Question `json:"questions"`
}

// Len returns the number of questions in the set.
func (s *QuestionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Questions)
}

// Phase is the lifecycle phase of a quiz session.
type Phase int

const (
	PhaseLoading  Phase = iota // waiting for the question set
	PhaseActive                // question shown, timer running
	PhaseRevealed              // answer revealed, advancement pending
	PhaseFinished              // all questions answered
	PhaseErrored               // question set could not be loaded
)

var phaseNames = [...]string{"loading", "active", "revealed", "finished", "errored"}

func (p Phase) String() string {
	if int(p) < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// MarshalText renders the phase by name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no further transitions are possible without a reset.
func (p Phase) Terminal() bool {
	return p == PhaseFinished || p == PhaseErrored
}

// AnswerRecord is the outcome of a single revealed question.
type AnswerRecord struct {
	Index         int    `json:"index"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correctAnswer"`
	Correct       bool   `json:"correct"`
	TimedOut      bool   `json:"timedOut"`
}

// Summary is the final report of a finished session.
type Summary struct {
	Answered int            `json:"answered"`
	Correct  int            `json:"correct"`
	Total    int            `json:"total"`
	Duration time.Duration  `json:"duration"`
	Results  []AnswerRecord `json:"results"`
}

// QuestionView is the player-facing view of the current question.
type QuestionView struct {
	Index   int      `json:"index"`
	Total   int      `json:"total"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}

// Snapshot is a point-in-time copy of a session, safe to hand to other goroutines.
type Snapshot struct {
	SessionID        string        `json:"sessionId"`
	Key              SetKey        `json:"key"`
	Phase            Phase         `json:"phase"`
	Question         *QuestionView `json:"question,omitempty"`
	Selected         string        `json:"selected,omitempty"`
	RemainingSeconds int           `json:"remainingSeconds"`
	Score            int           `json:"score"`
	Reveal           *AnswerRecord `json:"reveal,omitempty"`
	Error            string        `json:"error,omitempty"`
}
