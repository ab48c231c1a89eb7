package redis

import (
	"context"
	"testing"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{
			"phishing": sampleQuiz(),
		}),
	}
	repo := NewQuizRepository(client, loader, time.Minute)

	_, err = repo.GetQuiz(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetQuiz(context.Background(), "phishing")
	if err != nil {
		t.Fatalf("get cached quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if len(cached.Questions) != 2 || cached.Questions[1].CorrectAnswer != 2 || len(cached.Questions[1].Options) != 3 {
		t.Fatalf("unexpected cached quiz %+v", cached)
	}
}

func TestCachedQuizScoresLikeSource(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuizRepository(newClient(mr), memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"phishing": sampleQuiz(),
	}), time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "phishing")
	cached, _ := repo.GetQuiz(context.Background(), "phishing")

	selected := []int{0, 1}
	if err := app.ValidateAnswers(cached, selected); err != nil {
		t.Fatalf("validate: %v", err)
	}
	want := app.ScoreQuiz(sampleQuiz(), selected)
	got := app.ScoreQuiz(cached, selected)
	if got.Score != want.Score || got.Total != want.Total {
		t.Fatalf("expected %d/%d, got %d/%d", want.Score, want.Total, got.Score, got.Total)
	}
}

func TestQuizRepositorySetsTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	repo := NewQuizRepository(newClient(mr), memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"phishing": sampleQuiz(),
	}), time.Minute)
	_, _ = repo.GetQuiz(context.Background(), "phishing")

	if ttl := mr.TTL("quiz:phishing:answers"); ttl < time.Minute {
		t.Fatalf("expected ttl of at least a minute, got %v", ttl)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, threatID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, threatID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:       "quiz-phishing",
		ThreatID: "phishing",
		Questions: []domain.Question{
			{
				Prompt:        "What should you do with an unexpected password reset email?",
				Options:       []string{"Verify through the official site", "Click the link"},
				CorrectAnswer: 0,
			},
			{
				Prompt:        "Which address is most likely spoofed?",
				Options:       []string{"support@bank.com", "it@company.com", "support@bank-secure-login.co"},
				CorrectAnswer: 2,
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
