package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trivia-quiz-engine/internal/domain"
)

// DefaultFetchTimeout bounds a shared question-set fetch, including provider retries.
const DefaultFetchTimeout = time.Minute

// QuestionSource fetches raw provider records for a category (Open Trivia DB, question bank, ...).
type QuestionSource interface {
	FetchQuestions(ctx context.Context, categoryID int, difficulty domain.Difficulty, amount int) ([]domain.RawQuestion, error)
}

// QuestionRepository resolves question sets, caching them per (topic, difficulty).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, topic string, difficulty domain.Difficulty) (*domain.QuestionSet, error)
}

// SessionRepository abstracts how live sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(id string) (*Session, bool)
	Remove(id string)
}

// sessionToucher is implemented by registries that keep an expiring liveness marker.
type sessionToucher interface {
	Touch(ctx context.Context, id string) error
}

// LoadQuestionSet resolves topic through the catalog, fetches from source and
// builds a decoded, shuffled question set. Unknown topics never reach source.
func LoadQuestionSet(ctx context.Context, source QuestionSource, topic string, difficulty domain.Difficulty, intn domain.IntN) (*domain.QuestionSet, error) {
	t, ok := domain.LookupTopic(topic)
	if !ok {
		return nil, fmt.Errorf("topic %q: %w", topic, domain.ErrInvalidCategory)
	}
	raws, err := source.FetchQuestions(ctx, t.CategoryID, difficulty, domain.QuestionsPerSet)
	if err != nil {
		return nil, err
	}
	return domain.BuildQuestionSet(domain.SetKey{Topic: topic, Difficulty: difficulty}, raws, intn)
}

// Engine starts and tracks quiz sessions.
type Engine struct {
	questions QuestionRepository
	sessions  SessionRepository
	sched     Scheduler
	logger    *slog.Logger
	newID     func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler overrides the timer source used by new sessions.
func WithScheduler(sched Scheduler) Option {
	return func(e *Engine) { e.sched = sched }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithIDGenerator overrides session ID generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func NewEngine(questions QuestionRepository, sessions SessionRepository, opts ...Option) *Engine {
	e := &Engine{
		questions: questions,
		sessions:  sessions,
		sched:     RealScheduler{},
		logger:    slog.Default(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartSession resolves the question set and starts its first question.
// On failure the returned session is in the Errored phase and the error
// is returned alongside it.
func (e *Engine) StartSession(ctx context.Context, topic, difficulty string) (*Session, error) {
	key := domain.SetKey{Topic: topic, Difficulty: domain.Difficulty(difficulty)}
	if d, err := domain.ParseDifficulty(difficulty); err == nil {
		key.Difficulty = d
	}
	session := NewSession(e.newID(), key, e.sched, e.logger)
	e.sessions.Add(session)

	if err := e.load(ctx, session); err != nil {
		return session, err
	}
	e.logger.Info("session started", "session", session.ID(), "topic", topic, "difficulty", difficulty)
	return session, nil
}

// Restart resets a session and starts it again from its (cached) question set.
func (e *Engine) Restart(ctx context.Context, id string) (*Session, error) {
	session, ok := e.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session.Reset()
	if err := e.load(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

// Session looks up a registered session.
func (e *Engine) Session(id string) (*Session, error) {
	session, ok := e.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Touch refreshes the liveness marker of a session when the registry keeps one.
func (e *Engine) Touch(ctx context.Context, id string) error {
	toucher, ok := e.sessions.(sessionToucher)
	if !ok {
		return nil
	}
	return toucher.Touch(ctx, id)
}

// End stops a session's timers and unregisters it.
func (e *Engine) End(id string) {
	session, ok := e.sessions.Get(id)
	if !ok {
		return
	}
	session.Close()
	e.sessions.Remove(id)
}

func (e *Engine) load(ctx context.Context, session *Session) error {
	key := session.Key()
	set, err := e.fetch(ctx, key)
	if err == nil {
		err = session.Initialize(set)
	}
	if err != nil {
		_ = session.Fail(err)
		return err
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, key domain.SetKey) (*domain.QuestionSet, error) {
	difficulty, err := domain.ParseDifficulty(string(key.Difficulty))
	if err != nil {
		return nil, err
	}
	return e.questions.GetQuestionSet(ctx, key.Topic, difficulty)
}
