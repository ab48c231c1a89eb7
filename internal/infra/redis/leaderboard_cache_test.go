package redis

import (
	"context"
	"testing"
	"time"

	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
)

type countingSource struct {
	rows  []domain.LeaderboardEntry
	calls int
}

func (s *countingSource) Leaderboard(context.Context) ([]domain.LeaderboardEntry, error) {
	s.calls++
	return s.rows, nil
}

func (s *countingSource) Standing(_ context.Context, learnerID string) (domain.LeaderboardEntry, bool, error) {
	for _, r := range s.rows {
		if r.LearnerID == learnerID {
			return r, true, nil
		}
	}
	return domain.LeaderboardEntry{}, false, nil
}

func TestLeaderboardCacheServesFromRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	source := &countingSource{rows: []domain.LeaderboardEntry{
		{LearnerID: "u1", TotalModuleProgress: 200, TotalQuizScore: 10},
		{LearnerID: "u2", TotalModuleProgress: 100},
	}}
	cache := NewLeaderboardCache(newClient(mr), source, 30*time.Second)

	first, err := cache.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	second, _ := cache.Leaderboard(ctx)
	if source.calls != 1 {
		t.Fatalf("expected one source load, got %d", source.calls)
	}
	if len(second) != len(first) || second[0].LearnerID != "u1" {
		t.Fatalf("unexpected cached rows %+v", second)
	}

	mr.FastForward(31 * time.Second)
	_, _ = cache.Leaderboard(ctx)
	if source.calls != 2 {
		t.Fatalf("expected reload after ttl, got %d loads", source.calls)
	}

	_ = cache.Invalidate(ctx)
	_, _ = cache.Leaderboard(ctx)
	if source.calls != 3 {
		t.Fatalf("expected reload after invalidate, got %d loads", source.calls)
	}
}

func TestTrackedUpsertInvalidatesLeaderboard(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	svc := memory.NewProgressService(nil)
	_, _ = svc.UpsertModuleProgress(ctx, "u1", "phishing", 40)
	cache := NewLeaderboardCache(newClient(mr), svc, 30*time.Second)
	remote := cache.Tracking(svc)

	rows, err := cache.Leaderboard(ctx)
	if err != nil || len(rows) != 1 || rows[0].TotalModuleProgress != 40 {
		t.Fatalf("unexpected first board %+v err=%v", rows, err)
	}
	if !mr.Exists(leaderboardKey) {
		t.Fatalf("expected board to be cached")
	}

	if _, err := remote.UpsertModuleProgress(ctx, "u1", "phishing", 70); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if mr.Exists(leaderboardKey) {
		t.Fatalf("expected upsert to drop the cached board")
	}
	if _, err := remote.UpsertQuizProgress(ctx, "u1", "phishing", 4, true); err != nil {
		t.Fatalf("upsert quiz: %v", err)
	}
	rows, _ = cache.Leaderboard(ctx)
	if rows[0].TotalModuleProgress != 70 || rows[0].TotalQuizScore != 4 {
		t.Fatalf("expected fresh totals, got %+v", rows[0])
	}
}
