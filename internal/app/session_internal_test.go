package app

import (
	"testing"
	"time"

	"trivia-quiz-engine/internal/domain"
)

// manualScheduler never fires on its own; tests invoke the captured callbacks.
type manualScheduler struct {
	ticks    []func()
	deferred []func()
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) func() {
	m.ticks = append(m.ticks, fn)
	return func() {}
}

func (m *manualScheduler) After(_ time.Duration, fn func()) func() {
	m.deferred = append(m.deferred, fn)
	return func() {}
}

func TestStaleTickIsDiscarded(t *testing.T) {
	sched := &manualScheduler{}
	session := newSessionWithClock("s-1", domain.SetKey{}, sched, nil, time.Now)
	set := &domain.QuestionSet{Questions: []domain.Question{
		{Prompt: "q1", CorrectAnswer: "a", Options: []string{"a", "b"}},
		{Prompt: "q2", CorrectAnswer: "c", Options: []string{"c", "d"}},
	}}
	if err := session.Initialize(set); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	staleTick := sched.ticks[0]

	_ = session.SelectAnswer("a")
	if _, err := session.SubmitAnswer(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// The ticker raced with submission and fires anyway.
	staleTick()
	if session.Phase() != domain.PhaseRevealed {
		t.Fatalf("stale tick changed phase to %s", session.Phase())
	}

	if err := session.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}
	staleTick()
	if got := session.RemainingSeconds(); got != QuestionSeconds {
		t.Fatalf("stale tick decremented the next question: %d", got)
	}

	// The deferred advance from question 0 fires late.
	sched.deferred[0]()
	if session.index != 1 || session.Phase() != domain.PhaseActive {
		t.Fatalf("stale deferred advance applied: index=%d phase=%s", session.index, session.Phase())
	}

	sched.ticks[1]()
	if got := session.RemainingSeconds(); got != QuestionSeconds-1 {
		t.Fatalf("current tick not applied: %d", got)
	}
}
