package app

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"trivia-quiz-engine/internal/domain"
)

const (
	// QuestionSeconds is the countdown each question starts with.
	QuestionSeconds = 30
	// TickInterval is the countdown resolution.
	TickInterval = time.Second
	// CorrectRevealDelay is how long a correct answer stays revealed before advancing.
	CorrectRevealDelay = 2 * time.Second
	// IncorrectRevealDelay gives the player longer to read the right answer.
	IncorrectRevealDelay = 3 * time.Second
)

// Session is the state machine of a single quiz run. All transitions are
// serialized by mu; the tick and deferred-advance callbacks capture the
// generation they were scheduled in and are dropped once it has moved on.
type Session struct {
	id     string
	key    domain.SetKey
	sched  Scheduler
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	set         *domain.QuestionSet
	index       int
	selected    string
	score       int
	remaining   int
	phase       domain.Phase
	err         error
	results     []domain.AnswerRecord
	generation  uint64
	stopTick    func()
	stopAdvance func()
	startedAt   time.Time
	finishedAt  time.Time
	subscribers map[chan domain.Snapshot]struct{}
}

// NewSession returns a session in the Loading phase.
func NewSession(id string, key domain.SetKey, sched Scheduler, logger *slog.Logger) *Session {
	return newSessionWithClock(id, key, sched, logger, time.Now)
}

// NewSessionWithClock is test-only for deterministic timestamps.
func NewSessionWithClock(id string, key domain.SetKey, sched Scheduler, now func() time.Time) *Session {
	return newSessionWithClock(id, key, sched, nil, now)
}

func newSessionWithClock(id string, key domain.SetKey, sched Scheduler, logger *slog.Logger, now func() time.Time) *Session {
	if sched == nil {
		sched = RealScheduler{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		id:          id,
		key:         key,
		sched:       sched,
		logger:      logger.With("session", id),
		now:         now,
		phase:       domain.PhaseLoading,
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Key returns the topic and difficulty the session was started for.
func (s *Session) Key() domain.SetKey { return s.key }

// Initialize starts the first question of set.
func (s *Session) Initialize(set *domain.QuestionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLoading {
		return fmt.Errorf("initialize in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	if set.Len() == 0 {
		return domain.ErrEmptyQuestionSet
	}
	s.set = set
	s.score = 0
	s.results = make([]domain.AnswerRecord, 0, set.Len())
	s.startedAt = s.now()
	s.beginQuestionLocked(0)
	s.broadcastLocked()
	return nil
}

// Fail moves a loading session into the Errored phase.
func (s *Session) Fail(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseLoading {
		return fmt.Errorf("fail in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	s.phase = domain.PhaseErrored
	s.err = err
	s.logger.Warn("session failed to load", "error", err)
	s.broadcastLocked()
	return nil
}

// SelectAnswer records the player's current choice. Repeated calls overwrite it.
func (s *Session) SelectAnswer(answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive {
		return fmt.Errorf("select in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	if !s.set.Questions[s.index].HasOption(answer) {
		return domain.ErrUnknownAnswer
	}
	if s.selected == answer {
		return nil
	}
	s.selected = answer
	s.broadcastLocked()
	return nil
}

// SubmitAnswer reveals the current question and scores the selection.
func (s *Session) SubmitAnswer() (domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive {
		return domain.AnswerRecord{}, fmt.Errorf("submit in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	if s.selected == "" {
		return domain.AnswerRecord{}, domain.ErrNoSelection
	}
	record := s.revealLocked(false)
	s.broadcastLocked()
	return record, nil
}

// Advance moves past a revealed question. It cancels the pending automatic
// advancement, so a second call for the same question is rejected.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseRevealed {
		return fmt.Errorf("advance in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	s.advanceLocked()
	s.broadcastLocked()
	return nil
}

// Reset returns the session to Loading so it can be initialized again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTasksLocked()
	s.generation++
	s.set = nil
	s.index = 0
	s.selected = ""
	s.score = 0
	s.remaining = 0
	s.results = nil
	s.err = nil
	s.phase = domain.PhaseLoading
	s.startedAt = time.Time{}
	s.finishedAt = time.Time{}
	s.broadcastLocked()
}

// Close stops all timers and closes subscriber channels.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopTasksLocked()
	s.generation++
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Err returns the load failure of an errored session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RemainingSeconds returns the countdown of the current question.
func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Score returns the number of correct answers so far.
func (s *Session) Score() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score
}

// CurrentQuestion returns the question being shown or revealed.
func (s *Session) CurrentQuestion() (domain.QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseActive && s.phase != domain.PhaseRevealed {
		return domain.QuestionView{}, fmt.Errorf("no current question in phase %s: %w", s.phase, domain.ErrInvalidTransition)
	}
	return s.questionViewLocked(), nil
}

// Summary reports the final outcome of a finished session.
func (s *Session) Summary() (domain.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseFinished {
		return domain.Summary{}, domain.ErrNotFinished
	}
	results := make([]domain.AnswerRecord, len(s.results))
	copy(results, s.results)
	return domain.Summary{
		Answered: len(s.results),
		Correct:  s.score,
		Total:    s.set.Len(),
		Duration: s.finishedAt.Sub(s.startedAt),
		Results:  results,
	}, nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) beginQuestionLocked(index int) {
	s.index = index
	s.selected = ""
	s.remaining = QuestionSeconds
	s.phase = domain.PhaseActive
	s.generation++

	gen := s.generation
	s.stopTick = s.sched.Every(TickInterval, func() { s.tick(gen) })
	s.logger.Debug("question started", "index", index)
}

func (s *Session) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || s.phase != domain.PhaseActive {
		return
	}
	if s.remaining > 0 {
		s.remaining--
	}
	if s.remaining == 0 {
		s.logger.Debug("question timed out", "index", s.index)
		s.revealLocked(true)
	}
	s.broadcastLocked()
}

// revealLocked stops the countdown, scores the selection and schedules advancement.
func (s *Session) revealLocked(timedOut bool) domain.AnswerRecord {
	s.stopTaskLocked(&s.stopTick)

	question := s.set.Questions[s.index]
	correct := s.selected != "" && s.selected == question.CorrectAnswer
	if correct {
		s.score++
	}
	record := domain.AnswerRecord{
		Index:         s.index,
		Selected:      s.selected,
		CorrectAnswer: question.CorrectAnswer,
		Correct:       correct,
		TimedOut:      timedOut,
	}
	s.results = append(s.results, record)
	s.phase = domain.PhaseRevealed

	delay := IncorrectRevealDelay
	if correct {
		delay = CorrectRevealDelay
	}
	gen, index := s.generation, s.index
	s.stopAdvance = s.sched.After(delay, func() { s.autoAdvance(gen, index) })
	return record
}

func (s *Session) autoAdvance(gen uint64, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation || index != s.index || s.phase != domain.PhaseRevealed {
		return
	}
	s.advanceLocked()
	s.broadcastLocked()
}

func (s *Session) advanceLocked() {
	s.stopTaskLocked(&s.stopAdvance)
	if s.index >= s.set.Len()-1 {
		s.generation++
		s.phase = domain.PhaseFinished
		s.finishedAt = s.now()
		s.logger.Info("session finished", "score", s.score, "total", s.set.Len())
		return
	}
	s.beginQuestionLocked(s.index + 1)
}

func (s *Session) stopTasksLocked() {
	s.stopTaskLocked(&s.stopTick)
	s.stopTaskLocked(&s.stopAdvance)
}

func (s *Session) stopTaskLocked(stop *func()) {
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}

func (s *Session) questionViewLocked() domain.QuestionView {
	q := s.set.Questions[s.index]
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return domain.QuestionView{
		Index:   s.index,
		Total:   s.set.Len(),
		Prompt:  q.Prompt,
		Options: options,
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:        s.id,
		Key:              s.key,
		Phase:            s.phase,
		Selected:         s.selected,
		RemainingSeconds: s.remaining,
		Score:            s.score,
	}
	switch s.phase {
	case domain.PhaseActive:
		view := s.questionViewLocked()
		snap.Question = &view
	case domain.PhaseRevealed:
		view := s.questionViewLocked()
		snap.Question = &view
		last := s.results[len(s.results)-1]
		snap.Reveal = &last
	case domain.PhaseErrored:
		snap.Error = domain.UserMessage(s.err)
	}
	return snap
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so a slow reader never blocks transitions.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
