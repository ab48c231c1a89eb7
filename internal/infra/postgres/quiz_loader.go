package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cybershield-progress/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads the questions JSONB of a threat's quiz from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, threatID string) (domain.Quiz, error) {
	var (
		id  string
		raw []byte
	)
	err := l.pool.QueryRow(ctx,
		`SELECT id, questions FROM quizzes WHERE threat_id=$1 ORDER BY created_at LIMIT 1`, threatID,
	).Scan(&id, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	quiz := domain.Quiz{ID: id, ThreatID: threatID}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// SeedQuiz inserts or replaces a quiz. Used by the migrate command to load bundled content.
func SeedQuiz(ctx context.Context, pool *pgxpool.Pool, quiz domain.Quiz) error {
	raw, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = pool.Exec(ctx,
		`INSERT INTO quizzes (id, threat_id, questions) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (id) DO UPDATE SET questions = EXCLUDED.questions, updated_at = now()`,
		quiz.ID, quiz.ThreatID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("seed quiz %s: %w", quiz.ThreatID, err)
	}
	return nil
}
