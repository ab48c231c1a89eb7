package app

import (
	"context"
	"fmt"
	"time"

	"cybershield-progress/internal/domain"
)

// DefaultTopK is how many leaderboard entries are shown.
const DefaultTopK = 10

// LeaderboardSource is the remote aggregation: Leaderboard returns every learner already
// ordered by the service, Standing returns one learner's aggregate without a rank.
type LeaderboardSource interface {
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
	Standing(ctx context.Context, learnerID string) (domain.LeaderboardEntry, bool, error)
}

// LeaderboardService numbers the service order and pulls out the caller's own standing
// when it falls outside the top.
type LeaderboardService struct {
	source LeaderboardSource
	topK   int
	now    func() time.Time
}

func NewLeaderboardService(source LeaderboardSource, topK int) *LeaderboardService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &LeaderboardService{source: source, topK: topK, now: time.Now}
}

// Leaderboard returns the top entries ranked 1..K in service order. Ties keep the
// service's order. learnerID may be empty for guests.
func (s *LeaderboardService) Leaderboard(ctx context.Context, learnerID string) (domain.Leaderboard, error) {
	rows, err := s.source.Leaderboard(ctx)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}

	ranked := make([]domain.LeaderboardEntry, len(rows))
	for i, row := range rows {
		row.TotalScore = row.TotalModuleProgress + row.TotalQuizScore
		row.Rank = i + 1
		ranked[i] = row
	}

	top := ranked
	if len(top) > s.topK {
		top = ranked[:s.topK]
	}
	board := domain.Leaderboard{
		Entries:   append([]domain.LeaderboardEntry(nil), top...),
		UpdatedAt: s.now(),
	}
	if learnerID == "" {
		return board, nil
	}
	for _, e := range top {
		if e.LearnerID == learnerID {
			return board, nil
		}
	}
	for _, e := range ranked[len(top):] {
		if e.LearnerID == learnerID {
			self := e
			board.Self = &self
			return board, nil
		}
	}

	self, ok, err := s.source.Standing(ctx, learnerID)
	if err != nil {
		return board, fmt.Errorf("load standing for %s: %w", learnerID, err)
	}
	if ok {
		self.TotalScore = self.TotalModuleProgress + self.TotalQuizScore
		self.Rank = 0
		board.Self = &self
	}
	return board, nil
}
