package postgres

import (
	"context"
	"errors"
	"fmt"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// ProgressService is the remote progress service. Every upsert merges in SQL so that
// concurrent writers from several tabs or devices can only raise stored values.
type ProgressService struct {
	pool *pgxpool.Pool
}

var (
	_ app.RemoteProgressService = (*ProgressService)(nil)
	_ app.LeaderboardSource     = (*ProgressService)(nil)
)

func NewProgressService(pool *pgxpool.Pool) *ProgressService {
	return &ProgressService{pool: pool}
}

const moduleColumns = `id, user_id, module_id, progress_percentage, created_at, updated_at`

func scanModule(row pgx.Row) (domain.ModuleProgress, error) {
	var rec domain.ModuleProgress
	err := row.Scan(&rec.ID, &rec.LearnerID, &rec.ModuleID, &rec.ProgressPercentage, &rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *ProgressService) GetModuleProgress(ctx context.Context, learnerID, moduleID string) (domain.ModuleProgress, bool, error) {
	rec, err := scanModule(s.pool.QueryRow(ctx,
		`SELECT `+moduleColumns+` FROM module_progress WHERE user_id=$1 AND module_id=$2`,
		learnerID, moduleID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ModuleProgress{}, false, nil
	}
	if err != nil {
		return domain.ModuleProgress{}, false, fmt.Errorf("get module progress: %w", err)
	}
	return rec, true, nil
}

func (s *ProgressService) ListModuleProgress(ctx context.Context, learnerID string) ([]domain.ModuleProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+moduleColumns+` FROM module_progress WHERE user_id=$1 ORDER BY module_id`, learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list module progress: %w", err)
	}
	defer rows.Close()

	var out []domain.ModuleProgress
	for rows.Next() {
		rec, err := scanModule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan module progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ProgressService) UpsertModuleProgress(ctx context.Context, learnerID, moduleID string, pct int) (domain.ModuleProgress, error) {
	rec, err := scanModule(s.pool.QueryRow(ctx,
		`INSERT INTO module_progress (id, user_id, module_id, progress_percentage)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, module_id) DO UPDATE SET
		   progress_percentage = GREATEST(module_progress.progress_percentage, EXCLUDED.progress_percentage),
		   updated_at = CASE
		     WHEN EXCLUDED.progress_percentage > module_progress.progress_percentage THEN now()
		     ELSE module_progress.updated_at
		   END
		 RETURNING `+moduleColumns,
		uuid.NewString(), learnerID, moduleID, pct,
	))
	if err != nil {
		return domain.ModuleProgress{}, fmt.Errorf("upsert module progress: %w", err)
	}
	return rec, nil
}

const quizColumns = `user_id, threat_id, COALESCE(score, 0), COALESCE(best_score, 0), completed, completed_at, updated_at`

func scanQuiz(row pgx.Row) (domain.QuizProgress, error) {
	var rec domain.QuizProgress
	err := row.Scan(&rec.LearnerID, &rec.ThreatID, &rec.LastScore, &rec.BestScore, &rec.Completed, &rec.CompletedAt, &rec.UpdatedAt)
	return rec, err
}

func (s *ProgressService) GetQuizProgress(ctx context.Context, learnerID, threatID string) (domain.QuizProgress, bool, error) {
	rec, err := scanQuiz(s.pool.QueryRow(ctx,
		`SELECT `+quizColumns+` FROM user_progress WHERE user_id=$1 AND threat_id=$2`,
		learnerID, threatID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizProgress{}, false, nil
	}
	if err != nil {
		return domain.QuizProgress{}, false, fmt.Errorf("get quiz progress: %w", err)
	}
	return rec, true, nil
}

func (s *ProgressService) ListQuizProgress(ctx context.Context, learnerID string) ([]domain.QuizProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+quizColumns+` FROM user_progress WHERE user_id=$1 ORDER BY threat_id`, learnerID,
	)
	if err != nil {
		return nil, fmt.Errorf("list quiz progress: %w", err)
	}
	defer rows.Close()

	var out []domain.QuizProgress
	for rows.Next() {
		rec, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quiz progress: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *ProgressService) UpsertQuizProgress(ctx context.Context, learnerID, threatID string, score int, completed bool) (domain.QuizProgress, error) {
	rec, err := scanQuiz(s.pool.QueryRow(ctx,
		`INSERT INTO user_progress (id, user_id, threat_id, score, best_score, completed, completed_at)
		 VALUES ($1, $2, $3, $4, $4, $5, CASE WHEN $5 THEN now() END)
		 ON CONFLICT (user_id, threat_id) DO UPDATE SET
		   score = EXCLUDED.score,
		   best_score = GREATEST(COALESCE(user_progress.best_score, 0), EXCLUDED.best_score),
		   completed = user_progress.completed OR EXCLUDED.completed,
		   completed_at = CASE
		     WHEN user_progress.completed THEN user_progress.completed_at
		     WHEN EXCLUDED.completed THEN now()
		     ELSE NULL
		   END,
		   updated_at = now()
		 RETURNING `+quizColumns,
		uuid.NewString(), learnerID, threatID, score, completed,
	))
	if err != nil {
		return domain.QuizProgress{}, fmt.Errorf("upsert quiz progress: %w", err)
	}
	return rec, nil
}

// leaderboardSQL aggregates per learner. Learners without a profile row are listed under
// their id. Ties are broken by user id so paging is stable.
const leaderboardSQL = `
WITH modules AS (
	SELECT user_id,
	       SUM(progress_percentage)::int AS total_module_progress,
	       COUNT(*) FILTER (WHERE progress_percentage >= 100)::int AS modules_completed
	FROM module_progress GROUP BY user_id
), quizzes AS (
	SELECT user_id,
	       SUM(COALESCE(best_score, 0))::int AS total_quiz_score,
	       COUNT(*) FILTER (WHERE completed)::int AS quizzes_completed
	FROM user_progress GROUP BY user_id
), learners AS (
	SELECT user_id FROM modules UNION SELECT user_id FROM quizzes
)
SELECT l.user_id,
       COALESCE(a.username, l.user_id) AS username,
       COALESCE(a.avatar_url, '') AS avatar_url,
       COALESCE(m.total_module_progress, 0),
       COALESCE(q.total_quiz_score, 0),
       COALESCE(m.modules_completed, 0),
       COALESCE(q.quizzes_completed, 0)
FROM learners l
LEFT JOIN modules m ON m.user_id = l.user_id
LEFT JOIN quizzes q ON q.user_id = l.user_id
LEFT JOIN accounts a ON a.id = l.user_id`

func scanEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := row.Scan(&e.LearnerID, &e.DisplayName, &e.AvatarURL,
		&e.TotalModuleProgress, &e.TotalQuizScore, &e.ModulesCompleted, &e.QuizzesCompleted)
	e.TotalScore = e.TotalModuleProgress + e.TotalQuizScore
	return e, err
}

func (s *ProgressService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, leaderboardSQL+`
		ORDER BY COALESCE(m.total_module_progress, 0) + COALESCE(q.total_quiz_score, 0) DESC, l.user_id`)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *ProgressService) Standing(ctx context.Context, learnerID string) (domain.LeaderboardEntry, bool, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, leaderboardSQL+` WHERE l.user_id = $1`, learnerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{}, false, nil
	}
	if err != nil {
		return domain.LeaderboardEntry{}, false, fmt.Errorf("query standing: %w", err)
	}
	return e, true, nil
}
