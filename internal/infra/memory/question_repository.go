package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
)

// QuestionRepository caches question sets per (topic, difficulty) for the
// lifetime of the repository. Entries are never evicted; concurrent misses
// for the same key share one fetch.
type QuestionRepository struct {
	source       app.QuestionSource
	intn         domain.IntN
	fetchTimeout time.Duration
	sf           singleflight.Group

	mu    sync.RWMutex
	cache map[domain.SetKey]*domain.QuestionSet
}

func NewQuestionRepository(source app.QuestionSource) *QuestionRepository {
	return &QuestionRepository{
		source:       source,
		fetchTimeout: app.DefaultFetchTimeout,
		cache:        make(map[domain.SetKey]*domain.QuestionSet),
	}
}

// WithRand sets the random source used to order answers; nil means math/rand/v2.
func (r *QuestionRepository) WithRand(intn domain.IntN) *QuestionRepository {
	r.intn = intn
	return r
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, topic string, difficulty domain.Difficulty) (*domain.QuestionSet, error) {
	key := domain.SetKey{Topic: topic, Difficulty: difficulty}

	if set, ok := r.cached(key); ok {
		return set, nil
	}

	ch := r.sf.DoChan(key.String(), func() (interface{}, error) {
		// Re-check in case the previous flight for this key just finished.
		if set, ok := r.cached(key); ok {
			return set, nil
		}

		// The flight is shared, so it must not die with whichever caller started it.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		set, err := app.LoadQuestionSet(fetchCtx, r.source, topic, difficulty, r.intn)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = set
		r.mu.Unlock()
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.QuestionSet), nil
	}
}

// WithFetchTimeout bounds a shared fetch, which outlives the caller that started it.
func (r *QuestionRepository) WithFetchTimeout(d time.Duration) *QuestionRepository {
	r.fetchTimeout = d
	return r
}

// Len returns the number of cached sets.
func (r *QuestionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func (r *QuestionRepository) cached(key domain.SetKey) (*domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.cache[key]
	return set, ok
}

// StaticQuestionSource serves fixed records per category (useful for tests/demos).
type StaticQuestionSource struct {
	records map[int][]domain.RawQuestion
}

func NewStaticQuestionSource(records map[int][]domain.RawQuestion) *StaticQuestionSource {
	return &StaticQuestionSource{records: records}
}

func (s *StaticQuestionSource) FetchQuestions(_ context.Context, categoryID int, _ domain.Difficulty, amount int) ([]domain.RawQuestion, error) {
	records, ok := s.records[categoryID]
	if !ok || len(records) == 0 {
		return nil, domain.ErrNoQuestionsAvailable
	}
	if amount > 0 && len(records) > amount {
		records = records[:amount]
	}
	return records, nil
}
