package app

import (
	"context"

	"cybershield-progress/internal/domain"
)

// RemoteProgressService is the authoritative store for authenticated learners. Upserts
// must apply max(existing, incoming) themselves; the client-side gate is not enough once
// the same account is open in two places.
type RemoteProgressService interface {
	GetModuleProgress(ctx context.Context, learnerID, moduleID string) (domain.ModuleProgress, bool, error)
	ListModuleProgress(ctx context.Context, learnerID string) ([]domain.ModuleProgress, error)
	UpsertModuleProgress(ctx context.Context, learnerID, moduleID string, pct int) (domain.ModuleProgress, error)
	GetQuizProgress(ctx context.Context, learnerID, threatID string) (domain.QuizProgress, bool, error)
	ListQuizProgress(ctx context.Context, learnerID string) ([]domain.QuizProgress, error)
	UpsertQuizProgress(ctx context.Context, learnerID, threatID string, score int, completed bool) (domain.QuizProgress, error)
}

// RemoteStore binds a learner to the remote service so it can serve as a ProgressStore tier.
type RemoteStore struct {
	svc       RemoteProgressService
	learnerID string
}

var _ ProgressStore = (*RemoteStore)(nil)

func NewRemoteStore(svc RemoteProgressService, learnerID string) *RemoteStore {
	return &RemoteStore{svc: svc, learnerID: learnerID}
}

func (s *RemoteStore) ModuleProgress(ctx context.Context, moduleID string) (int, error) {
	rec, ok, err := s.svc.GetModuleProgress(ctx, s.learnerID, moduleID)
	if err != nil || !ok {
		return 0, err
	}
	return rec.ProgressPercentage, nil
}

func (s *RemoteStore) SaveModuleProgress(ctx context.Context, moduleID string, pct int) error {
	_, err := s.svc.UpsertModuleProgress(ctx, s.learnerID, moduleID, pct)
	return err
}

func (s *RemoteStore) QuizProgress(ctx context.Context, threatID string) (domain.QuizProgress, bool, error) {
	return s.svc.GetQuizProgress(ctx, s.learnerID, threatID)
}

func (s *RemoteStore) SaveQuizProgress(ctx context.Context, threatID string, score int, completed bool) error {
	_, err := s.svc.UpsertQuizProgress(ctx, s.learnerID, threatID, score, completed)
	return err
}

func (s *RemoteStore) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	modules, err := s.svc.ListModuleProgress(ctx, s.learnerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	quizzes, err := s.svc.ListQuizProgress(ctx, s.learnerID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		Modules: make(map[string]int, len(modules)),
		Quizzes: make(map[string]domain.QuizProgress, len(quizzes)),
	}
	for _, m := range modules {
		snap.Modules[m.ModuleID] = m.ProgressPercentage
	}
	for _, q := range quizzes {
		snap.Quizzes[q.ThreatID] = q
	}
	return snap, nil
}
