package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
)

// QuestionRepository keeps decoded question sets in a process-local map backed
// by a Redis JSON tier, and falls back to a QuestionSource on a miss.
// Sets are stored as: SET quizengine:{namespace}:questions:{topic}:{difficulty} <json>
//
// The local map is authoritative once filled, so a set never changes for the
// lifetime of the repository even if the Redis entry expires.
type QuestionRepository struct {
	client       *redis.Client
	source       app.QuestionSource
	ttl          time.Duration
	namespace    string
	intn         domain.IntN
	fetchTimeout time.Duration
	logger       *slog.Logger
	sf           singleflight.Group

	mu    sync.RWMutex
	local map[domain.SetKey]*domain.QuestionSet
}

func NewQuestionRepository(client *redis.Client, source app.QuestionSource, ttl time.Duration, namespace string) *QuestionRepository {
	return &QuestionRepository{
		client:       client,
		source:       source,
		ttl:          ttl,
		namespace:    namespace,
		fetchTimeout: app.DefaultFetchTimeout,
		logger:       slog.Default(),
		local:        make(map[domain.SetKey]*domain.QuestionSet),
	}
}

// WithRand sets the random source used to order answers.
func (r *QuestionRepository) WithRand(intn domain.IntN) *QuestionRepository {
	r.intn = intn
	return r
}

func (r *QuestionRepository) WithLogger(logger *slog.Logger) *QuestionRepository {
	r.logger = logger
	return r
}

func (r *QuestionRepository) GetQuestionSet(ctx context.Context, topic string, difficulty domain.Difficulty) (*domain.QuestionSet, error) {
	key := domain.SetKey{Topic: topic, Difficulty: difficulty}
	if set, ok := r.cachedLocal(key); ok {
		return set, nil
	}
	if _, ok := domain.LookupTopic(topic); !ok {
		return nil, fmt.Errorf("topic %q: %w", topic, domain.ErrInvalidCategory)
	}

	ch := r.sf.DoChan(key.String(), func() (interface{}, error) {
		if set, ok := r.cachedLocal(key); ok {
			return set, nil
		}

		// Detached from the first caller: others may be waiting on this flight.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout)
		defer cancel()
		if set, ok := r.cachedRemote(fetchCtx, key); ok {
			r.storeLocal(key, set)
			return set, nil
		}

		set, err := app.LoadQuestionSet(fetchCtx, r.source, topic, difficulty, r.intn)
		if err != nil {
			return nil, err
		}
		r.storeLocal(key, set)
		r.storeRemote(fetchCtx, key, set)
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

func (r *QuestionRepository) setKey(key domain.SetKey) string {
	return "quizengine:" + r.namespace + ":questions:" + key.Topic + ":" + string(key.Difficulty)
}

func (r *QuestionRepository) cachedLocal(key domain.SetKey) (*domain.QuestionSet, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.local[key]
	return set, ok
}

func (r *QuestionRepository) storeLocal(key domain.SetKey, set *domain.QuestionSet) {
	r.mu.Lock()
	r.local[key] = set
	r.mu.Unlock()
}

func (r *QuestionRepository) cachedRemote(ctx context.Context, key domain.SetKey) (*domain.QuestionSet, bool) {
	raw, err := r.client.Get(ctx, r.setKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("redis question cache read failed", "key", key.String(), "error", err)
		}
		return nil, false
	}
	var set domain.QuestionSet
	if err := json.Unmarshal(raw, &set); err != nil || set.Len() == 0 {
		r.logger.Warn("redis question cache entry unusable", "key", key.String(), "error", err)
		return nil, false
	}
	return &set, true
}

// storeRemote is best effort; the local map already holds the set.
func (r *QuestionRepository) storeRemote(ctx context.Context, key domain.SetKey, set *domain.QuestionSet) {
	payload, err := json.Marshal(set)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.setKey(key), payload, r.ttlWithJitter()).Err(); err != nil {
		r.logger.Warn("redis question cache write failed", "key", key.String(), "error", err)
	}
}

func (r *QuestionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int64N(jitterMax+1))
}
