package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trivia-quiz-engine/internal/app"
	"trivia-quiz-engine/internal/domain"
	"trivia-quiz-engine/internal/infra/memory"
)

func TestQuestionRepositoryCachesInRedis(t *testing.T) {
	mr := runMiniredis(t)
	client := newClient(mr)

	source := newCountingSource()
	repo := NewQuestionRepository(client, source, time.Minute, "test")

	set, err := repo.GetQuestionSet(context.Background(), "general-knowledge", domain.DifficultyEasy)
	if err != nil {
		t.Fatalf("get question set: %v", err)
	}
	if source.calls.Load() != 1 {
		t.Fatalf("expected source called once, got %d", source.calls.Load())
	}
	key := "quizengine:test:questions:general-knowledge:easy"
	if !mr.Exists(key) {
		t.Fatalf("expected redis key %s to be set", key)
	}
	if ttl := mr.TTL(key); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	// Second call is served locally and returns the same set.
	again, _ := repo.GetQuestionSet(context.Background(), "general-knowledge", domain.DifficultyEasy)
	if again != set || source.calls.Load() != 1 {
		t.Fatalf("expected local cache hit, source calls=%d", source.calls.Load())
	}
}

func TestQuestionRepositorySharesSetsThroughRedis(t *testing.T) {
	mr := runMiniredis(t)
	source := newCountingSource()

	first := NewQuestionRepository(newClient(mr), source, time.Minute, "shared")
	set, err := first.GetQuestionSet(context.Background(), "science-nature", domain.DifficultyHard)
	if err != nil {
		t.Fatalf("first: %v", err)
	}

	second := NewQuestionRepository(newClient(mr), source, time.Minute, "shared")
	other, err := second.GetQuestionSet(context.Background(), "science-nature", domain.DifficultyHard)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if source.calls.Load() != 1 {
		t.Fatalf("expected redis tier hit, source calls=%d", source.calls.Load())
	}
	for i := range set.Questions {
		if fmt.Sprint(set.Questions[i].Options) != fmt.Sprint(other.Questions[i].Options) {
			t.Fatalf("option order differs at %d", i)
		}
	}
}

func TestQuestionRepositoryIgnoresCorruptEntry(t *testing.T) {
	mr := runMiniredis(t)
	if err := mr.Set("quizengine:ns:questions:arts-literature:medium", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	source := newCountingSource()
	repo := NewQuestionRepository(newClient(mr), source, 0, "ns")

	set, err := repo.GetQuestionSet(context.Background(), "arts-literature", domain.DifficultyMedium)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if set.Len() != domain.QuestionsPerSet || source.calls.Load() != 1 {
		t.Fatalf("expected refetch, len=%d calls=%d", set.Len(), source.calls.Load())
	}

	stored, _ := mr.Get("quizengine:ns:questions:arts-literature:medium")
	var decoded domain.QuestionSet
	if err := json.Unmarshal([]byte(stored), &decoded); err != nil || decoded.Len() != domain.QuestionsPerSet {
		t.Fatalf("expected entry rewritten, got %q (%v)", stored, err)
	}
}

func TestQuestionRepositoryUnknownTopic(t *testing.T) {
	mr := runMiniredis(t)
	source := newCountingSource()
	repo := NewQuestionRepository(newClient(mr), source, time.Minute, "ns")

	_, err := repo.GetQuestionSet(context.Background(), "astrology", domain.DifficultyEasy)
	if !errors.Is(err, domain.ErrInvalidCategory) {
		t.Fatalf("expected invalid category, got %v", err)
	}
	if source.calls.Load() != 0 {
		t.Fatalf("expected no fetch, got %d", source.calls.Load())
	}
}

func TestQuestionRepositoryDoesNotCacheFailures(t *testing.T) {
	mr := runMiniredis(t)
	source := &countingSource{QuestionSource: memory.NewStaticQuestionSource(nil)}
	repo := NewQuestionRepository(newClient(mr), source, time.Minute, "ns")

	for i := 0; i < 2; i++ {
		if _, err := repo.GetQuestionSet(context.Background(), "general-knowledge", domain.DifficultyEasy); !errors.Is(err, domain.ErrNoQuestionsAvailable) {
			t.Fatalf("expected no questions, got %v", err)
		}
	}
	if source.calls.Load() != 2 {
		t.Fatalf("expected failure not cached, calls=%d", source.calls.Load())
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("expected nothing written, got %v", mr.Keys())
	}
}

func TestQuestionRepositoryCancelledCallerDoesNotFailOthers(t *testing.T) {
	mr := runMiniredis(t)
	source := newCountingSource()
	source.gate = make(chan struct{})
	repo := NewQuestionRepository(newClient(mr), source, time.Minute, "ns")

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := repo.GetQuestionSet(firstCtx, "english-language", domain.DifficultyHard)
		firstErr <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for source.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	secondErr := make(chan error, 1)
	var shared *domain.QuestionSet
	go func() {
		set, err := repo.GetQuestionSet(context.Background(), "english-language", domain.DifficultyHard)
		shared = set
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected first caller cancelled, got %v", err)
	}
	close(source.gate)
	if err := <-secondErr; err != nil {
		t.Fatalf("second caller failed: %v", err)
	}
	if shared.Len() != domain.QuestionsPerSet || source.calls.Load() != 1 {
		t.Fatalf("expected one shared fetch, len=%d calls=%d", shared.Len(), source.calls.Load())
	}
	if !mr.Exists("quizengine:ns:questions:english-language:hard") {
		t.Fatalf("expected the shared set written to redis")
	}
}

type countingSource struct {
	app.QuestionSource
	gate  chan struct{}
	calls atomic.Int32
}

func (s *countingSource) FetchQuestions(ctx context.Context, categoryID int, difficulty domain.Difficulty, amount int) ([]domain.RawQuestion, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.QuestionSource.FetchQuestions(ctx, categoryID, difficulty, amount)
}

func newCountingSource() *countingSource {
	records := map[int][]domain.RawQuestion{}
	for _, topic := range domain.Topics() {
		for i := 0; i < domain.QuestionsPerSet; i++ {
			records[topic.CategoryID] = append(records[topic.CategoryID], domain.RawQuestion{
				Question:         fmt.Sprintf("Question %d about %s?", i+1, topic.Title),
				CorrectAnswer:    "yes",
				IncorrectAnswers: []string{"no", "maybe", "never"},
			})
		}
	}
	return &countingSource{QuestionSource: memory.NewStaticQuestionSource(records)}
}

func runMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return mr
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
