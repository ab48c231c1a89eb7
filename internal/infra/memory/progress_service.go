package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
	"github.com/google/uuid"
)

// ProfileLookup resolves display data for leaderboard rows.
type ProfileLookup interface {
	ByID(ctx context.Context, id string) (domain.Account, error)
}

// ProgressService is an in-process remote progress service for development and tests.
// It applies the same max-merge rules the Postgres service applies in SQL.
type ProgressService struct {
	profiles ProfileLookup
	now      func() time.Time

	mu      sync.RWMutex
	modules map[string]map[string]domain.ModuleProgress
	quizzes map[string]map[string]domain.QuizProgress
}

var (
	_ app.RemoteProgressService = (*ProgressService)(nil)
	_ app.LeaderboardSource     = (*ProgressService)(nil)
)

// NewProgressService builds the service. profiles may be nil, in which case learners
// are listed under their id.
func NewProgressService(profiles ProfileLookup) *ProgressService {
	return &ProgressService{
		profiles: profiles,
		now:      time.Now,
		modules:  make(map[string]map[string]domain.ModuleProgress),
		quizzes:  make(map[string]map[string]domain.QuizProgress),
	}
}

func (s *ProgressService) GetModuleProgress(_ context.Context, learnerID, moduleID string) (domain.ModuleProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.modules[learnerID][moduleID]
	return rec, ok, nil
}

func (s *ProgressService) ListModuleProgress(_ context.Context, learnerID string) ([]domain.ModuleProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ModuleProgress, 0, len(s.modules[learnerID]))
	for _, rec := range s.modules[learnerID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}

// UpsertModuleProgress stores max(existing, pct) under (learnerID, moduleID).
func (s *ProgressService) UpsertModuleProgress(_ context.Context, learnerID, moduleID string, pct int) (domain.ModuleProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	byModule, ok := s.modules[learnerID]
	if !ok {
		byModule = make(map[string]domain.ModuleProgress)
		s.modules[learnerID] = byModule
	}
	rec, ok := byModule[moduleID]
	if !ok {
		rec = domain.ModuleProgress{
			ID:        uuid.NewString(),
			LearnerID: learnerID,
			ModuleID:  moduleID,
			CreatedAt: now,
		}
	}
	if pct > rec.ProgressPercentage || !ok {
		rec.ProgressPercentage = max(rec.ProgressPercentage, pct)
		rec.UpdatedAt = now
	}
	byModule[moduleID] = rec
	return rec, nil
}

func (s *ProgressService) GetQuizProgress(_ context.Context, learnerID, threatID string) (domain.QuizProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.quizzes[learnerID][threatID]
	return rec, ok, nil
}

func (s *ProgressService) ListQuizProgress(_ context.Context, learnerID string) ([]domain.QuizProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuizProgress, 0, len(s.quizzes[learnerID]))
	for _, rec := range s.quizzes[learnerID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThreatID < out[j].ThreatID })
	return out, nil
}

// UpsertQuizProgress records an attempt: best = max(existing best, score), completion is
// sticky and completedAt is set only on the false to true transition.
func (s *ProgressService) UpsertQuizProgress(_ context.Context, learnerID, threatID string, score int, completed bool) (domain.QuizProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	byThreat, ok := s.quizzes[learnerID]
	if !ok {
		byThreat = make(map[string]domain.QuizProgress)
		s.quizzes[learnerID] = byThreat
	}
	rec := byThreat[threatID]
	rec.LearnerID = learnerID
	rec.ThreatID = threatID
	rec.LastScore = score
	rec.BestScore = max(rec.BestScore, score)
	if completed && !rec.Completed {
		rec.Completed = true
		rec.CompletedAt = &now
	}
	rec.UpdatedAt = now
	byThreat[threatID] = rec
	return rec, nil
}

// Leaderboard aggregates every learner with progress, ordered by total score descending.
// Ties are ordered by learner id so the order is stable.
func (s *ProgressService) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	learners := make(map[string]struct{})
	for id := range s.modules {
		learners[id] = struct{}{}
	}
	for id := range s.quizzes {
		learners[id] = struct{}{}
	}
	entries := make([]domain.LeaderboardEntry, 0, len(learners))
	for id := range learners {
		entries = append(entries, s.aggregateLocked(id))
	}
	s.mu.RUnlock()

	for i := range entries {
		s.decorate(ctx, &entries[i])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		return entries[i].LearnerID < entries[j].LearnerID
	})
	return entries, nil
}

func (s *ProgressService) Standing(ctx context.Context, learnerID string) (domain.LeaderboardEntry, bool, error) {
	s.mu.RLock()
	_, hasModules := s.modules[learnerID]
	_, hasQuizzes := s.quizzes[learnerID]
	entry := s.aggregateLocked(learnerID)
	s.mu.RUnlock()
	if !hasModules && !hasQuizzes {
		return domain.LeaderboardEntry{}, false, nil
	}
	s.decorate(ctx, &entry)
	return entry, true, nil
}

func (s *ProgressService) aggregateLocked(learnerID string) domain.LeaderboardEntry {
	entry := domain.LeaderboardEntry{LearnerID: learnerID, DisplayName: learnerID}
	for _, m := range s.modules[learnerID] {
		entry.TotalModuleProgress += m.ProgressPercentage
		if m.ProgressPercentage >= 100 {
			entry.ModulesCompleted++
		}
	}
	for _, q := range s.quizzes[learnerID] {
		entry.TotalQuizScore += q.BestScore
		if q.Completed {
			entry.QuizzesCompleted++
		}
	}
	entry.TotalScore = entry.TotalModuleProgress + entry.TotalQuizScore
	return entry
}

func (s *ProgressService) decorate(ctx context.Context, entry *domain.LeaderboardEntry) {
	if s.profiles == nil {
		return
	}
	account, err := s.profiles.ByID(ctx, entry.LearnerID)
	if err != nil {
		return
	}
	entry.DisplayName = account.Username
	entry.AvatarURL = account.AvatarURL
}
