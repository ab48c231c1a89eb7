package redis

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const leaderboardKey = "leaderboard:all"

// LeaderboardCache fronts a LeaderboardSource with a short-lived Redis copy of the full
// ordered list. Concurrent misses share one load. Standing is never cached.
type LeaderboardCache struct {
	client *redis.Client
	source app.LeaderboardSource
	ttl    time.Duration
	sf     singleflight.Group
}

var _ app.LeaderboardSource = (*LeaderboardCache)(nil)

func NewLeaderboardCache(client *redis.Client, source app.LeaderboardSource, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, source: source, ttl: ttl}
}

func (c *LeaderboardCache) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	if rows, ok := c.cached(ctx); ok {
		return rows, nil
	}

	result, err, _ := c.sf.Do(leaderboardKey, func() (interface{}, error) {
		if rows, ok := c.cached(ctx); ok {
			return rows, nil
		}
		rows, err := c.source.Leaderboard(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(rows); err == nil {
			if err := c.client.Set(ctx, leaderboardKey, raw, c.ttl).Err(); err != nil {
				log.Printf("cache leaderboard: %v", err)
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.LeaderboardEntry), nil
}

func (c *LeaderboardCache) Standing(ctx context.Context, learnerID string) (domain.LeaderboardEntry, bool, error) {
	return c.source.Standing(ctx, learnerID)
}

// Invalidate drops the cached list so the next read reloads it.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, leaderboardKey).Err()
}

func (c *LeaderboardCache) cached(ctx context.Context) ([]domain.LeaderboardEntry, bool) {
	raw, err := c.client.Get(ctx, leaderboardKey).Bytes()
	if err != nil {
		return nil, false
	}
	var rows []domain.LeaderboardEntry
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}
	return rows, true
}

// InvalidatingProgress wraps a progress service so every successful upsert drops the
// cached leaderboard, letting a learner see their own score change at once.
type InvalidatingProgress struct {
	app.RemoteProgressService
	cache *LeaderboardCache
}

var _ app.RemoteProgressService = (*InvalidatingProgress)(nil)

// Tracking returns remote wrapped so its writes invalidate c.
func (c *LeaderboardCache) Tracking(remote app.RemoteProgressService) *InvalidatingProgress {
	return &InvalidatingProgress{RemoteProgressService: remote, cache: c}
}

func (p *InvalidatingProgress) UpsertModuleProgress(ctx context.Context, learnerID, moduleID string, pct int) (domain.ModuleProgress, error) {
	rec, err := p.RemoteProgressService.UpsertModuleProgress(ctx, learnerID, moduleID, pct)
	if err == nil {
		p.invalidate(ctx)
	}
	return rec, err
}

func (p *InvalidatingProgress) UpsertQuizProgress(ctx context.Context, learnerID, threatID string, score int, completed bool) (domain.QuizProgress, error) {
	rec, err := p.RemoteProgressService.UpsertQuizProgress(ctx, learnerID, threatID, score, completed)
	if err == nil {
		p.invalidate(ctx)
	}
	return rec, err
}

func (p *InvalidatingProgress) invalidate(ctx context.Context) {
	if err := p.cache.Invalidate(ctx); err != nil {
		log.Printf("invalidate leaderboard: %v", err)
	}
}
