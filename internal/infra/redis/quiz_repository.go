package redis

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuizRepository caches the answer key of each quiz in Redis and falls back to a loader
// on a miss. Only what scoring needs is cached:
//
//	HSET quiz:{threatID}:answers {questionIndex} {correctOptionIndex}
//	HSET quiz:{threatID}:options {questionIndex} {optionCount}
type QuizRepository struct {
	client *redis.Client
	loader memory.QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader memory.QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, threatID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, threatID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(threatID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, threatID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, threatID)
		if err != nil {
			return domain.Quiz{}, err
		}

		answerKey, optionKey := r.answersKey(threatID), r.optionsKey(threatID)
		ttl := r.ttlWithJitter()
		pipe := r.client.Pipeline()
		for i, q := range quiz.Questions {
			field := strconv.Itoa(i)
			pipe.HSet(ctx, answerKey, field, q.CorrectAnswer)
			pipe.HSet(ctx, optionKey, field, len(q.Options))
		}
		if ttl > 0 {
			pipe.Expire(ctx, answerKey, ttl)
			pipe.Expire(ctx, optionKey, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(ctx context.Context, threatID string) (domain.Quiz, bool) {
	answers, err := r.client.HGetAll(ctx, r.answersKey(threatID)).Result()
	if err != nil || len(answers) == 0 {
		return domain.Quiz{}, false
	}
	options, _ := r.client.HGetAll(ctx, r.optionsKey(threatID)).Result()
	return buildQuizFromCache(threatID, answers, options)
}

func (r *QuizRepository) answersKey(threatID string) string {
	return "quiz:" + threatID + ":answers"
}

func (r *QuizRepository) optionsKey(threatID string) string {
	return "quiz:" + threatID + ":options"
}

// buildQuizFromCache rebuilds an answer-only quiz. Prompts and option text are not cached,
// so options are placeholders sized to the cached count.
func buildQuizFromCache(threatID string, answers, options map[string]string) (domain.Quiz, bool) {
	indices := make([]int, 0, len(answers))
	for field := range answers {
		i, err := strconv.Atoi(field)
		if err != nil || i < 0 {
			return domain.Quiz{}, false
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)

	questions := make([]domain.Question, len(indices))
	for pos, i := range indices {
		if pos != i {
			// gap in the hash, treat as a miss
			return domain.Quiz{}, false
		}
		field := strconv.Itoa(i)
		correct, err := strconv.Atoi(answers[field])
		if err != nil {
			return domain.Quiz{}, false
		}
		count, _ := strconv.Atoi(options[field])
		questions[i] = domain.Question{
			Options:       make([]string, count),
			CorrectAnswer: correct,
		}
	}
	return domain.Quiz{ID: "quiz-" + threatID, ThreatID: threatID, Questions: questions}, true
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
