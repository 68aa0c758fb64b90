package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[int64]domain.Quiz{1: sampleQuiz()}),
	}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, zap.NewNop())

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:1") {
		t.Fatalf("expected quiz cached under quiz:1")
	}

	// Second call should hit cache and keep full content.
	quiz, err := repo.GetQuiz(context.Background(), 1)
	if err != nil {
		t.Fatalf("get cached quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if quiz.Title != "Arithmetic" || len(quiz.Questions[0].Choices) != 2 || !quiz.Questions[0].Choices[1].IsCorrect {
		t.Fatalf("cached quiz lost content: %+v", quiz)
	}

	if err := repo.Invalidate(context.Background(), 1); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetQuiz(context.Background(), 1)
	if loader.calls != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls)
	}
}

func TestQuizRepositoryIgnoresCorruptCache(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	_ = mr.Set("quiz:1", "{not json")

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[int64]domain.Quiz{1: sampleQuiz()}),
	}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute, zap.NewNop())
	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("corrupt entry should fall back to loader")
	}
}

func TestQuizRepositoryPropagatesNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuizRepository(newClient(mr), memory.NewStaticQuizLoader(nil), time.Minute, zap.NewNop())
	if _, err := repo.GetQuiz(context.Background(), 9); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
	if mr.Exists("quiz:9") {
		t.Fatalf("misses must not be cached")
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    1,
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:           10,
				QuizID:       1,
				Text:         "What is 2 + 2?",
				TimerSeconds: 20,
				Choices: []domain.Choice{
					{ID: 100, QuestionID: 10, Text: "3"},
					{ID: 101, QuestionID: 10, Text: "4", IsCorrect: true},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
