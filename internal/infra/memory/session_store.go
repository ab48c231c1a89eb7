package memory

import (
	"context"
	"sync"
	"time"

	"cybershield-progress/internal/domain"
)

// SessionStore is the ephemeral progress tier: a max-merging in-memory map that lives as
// long as one learner session and is never persisted.
type SessionStore struct {
	now func() time.Time

	mu      sync.RWMutex
	modules map[string]int
	quizzes map[string]domain.QuizProgress
}

func NewSessionStore() *SessionStore {
	return NewSessionStoreWithClock(time.Now)
}

// NewSessionStoreWithClock allows deterministic timestamps in tests.
func NewSessionStoreWithClock(now func() time.Time) *SessionStore {
	return &SessionStore{
		now:     now,
		modules: make(map[string]int),
		quizzes: make(map[string]domain.QuizProgress),
	}
}

func (s *SessionStore) ModuleProgress(_ context.Context, moduleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modules[moduleID], nil
}

// SaveModuleProgress keeps max(existing, pct).
func (s *SessionStore) SaveModuleProgress(_ context.Context, moduleID string, pct int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pct > s.modules[moduleID] {
		s.modules[moduleID] = pct
	}
	return nil
}

func (s *SessionStore) QuizProgress(_ context.Context, threatID string) (domain.QuizProgress, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[threatID]
	return q, ok, nil
}

// SaveQuizProgress max-merges the best score and OR-merges completion.
func (s *SessionStore) SaveQuizProgress(_ context.Context, threatID string, score int, completed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	q := s.quizzes[threatID]
	q.ThreatID = threatID
	q.LastScore = score
	q.UpdatedAt = now
	if score > q.BestScore {
		q.BestScore = score
	}
	if completed && !q.Completed {
		q.Completed = true
		q.CompletedAt = &now
	}
	s.quizzes[threatID] = q
	return nil
}

func (s *SessionStore) Snapshot(_ context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.Snapshot{
		Modules: make(map[string]int, len(s.modules)),
		Quizzes: make(map[string]domain.QuizProgress, len(s.quizzes)),
	}
	for id, pct := range s.modules {
		snap.Modules[id] = pct
	}
	for id, q := range s.quizzes {
		snap.Quizzes[id] = q
	}
	return snap, nil
}

func (s *SessionStore) HasAnyProgress() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.modules) > 0 || len(s.quizzes) > 0
}

// Clear empties the store.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modules = make(map[string]int)
	s.quizzes = make(map[string]domain.QuizProgress)
}
