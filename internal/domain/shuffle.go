package domain

import (
	"errors"
	"math/rand/v2"
)

// IntN returns a uniformly chosen int in [0, n).
type IntN func(n int) int

// ShuffleAnswers combines the correct answer with the distractors and applies a
// Fisher-Yates permutation. A nil intn uses math/rand/v2.
func ShuffleAnswers(correct string, distractors []string, intn IntN) []string {
	if intn == nil {
		intn = rand.IntN
	}
	options := make([]string, 0, len(distractors)+1)
	options = append(options, correct)
	options = append(options, distractors...)
	for i := len(options) - 1; i > 0; i-- {
		j := intn(i + 1)
		options[i], options[j] = options[j], options[i]
	}
	return options
}

// NewQuestion decodes a provider record and fixes its option order.
func NewQuestion(raw RawQuestion, intn IntN) Question {
	distractors := make([]string, len(raw.IncorrectAnswers))
	for i, d := range raw.IncorrectAnswers {
		distractors[i] = DecodeEntities(d)
	}
	correct := DecodeEntities(raw.CorrectAnswer)
	return Question{
		Prompt:        DecodeEntities(raw.Question),
		CorrectAnswer: correct,
		Distractors:   distractors,
		Options:       ShuffleAnswers(correct, distractors, intn),
	}
}

// BuildQuestionSet assembles a QuestionSet from provider records.
func BuildQuestionSet(key SetKey, raws []RawQuestion, intn IntN) (*QuestionSet, error) {
	if len(raws) == 0 {
		return nil, ErrNoQuestionsAvailable
	}
	questions := make([]Question, 0, len(raws))
	for _, raw := range raws {
		if raw.Question == "" || raw.CorrectAnswer == "" {
			return nil, errors.New("provider returned a question without prompt or answer")
		}
		questions = append(questions, NewQuestion(raw, intn))
	}
	return &QuestionSet{Key: key, Questions: questions}, nil
}
