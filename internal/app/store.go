package app

import (
	"context"
	"errors"

	"cybershield-progress/internal/domain"
)

// ProgressStore is the read/write contract shared by every progress tier. Implementations
// max-merge module progress and best score and OR-merge completion, so a write can never
// lower what a tier already holds.
type ProgressStore interface {
	ModuleProgress(ctx context.Context, moduleID string) (int, error)
	SaveModuleProgress(ctx context.Context, moduleID string, pct int) error
	QuizProgress(ctx context.Context, threatID string) (domain.QuizProgress, bool, error)
	SaveQuizProgress(ctx context.Context, threatID string, score int, completed bool) error
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// SessionTier is the process-lifetime tier. It is cleared after guest progress has been
// handed to an account.
type SessionTier interface {
	ProgressStore
	HasAnyProgress() bool
	Clear()
}

// DurableTier survives restarts of the learner's client.
type DurableTier interface {
	ProgressStore
	HasAnyProgress(ctx context.Context) bool
	ClearAll(ctx context.Context) error
}

// PendingTransfers is the single-slot hand-off buffer between a guest quiz and an account.
type PendingTransfers interface {
	Save(ctx context.Context, entry domain.PendingTransfer) error
	Read(ctx context.Context) (*domain.PendingTransfer, error)
	Clear(ctx context.Context) error
}

// ReconciledStore composes tiers: reads take the maximum over every tier that answers,
// writes go to every tier.
type ReconciledStore struct {
	tiers []ProgressStore
}

var _ ProgressStore = (*ReconciledStore)(nil)

func NewReconciledStore(tiers ...ProgressStore) *ReconciledStore {
	return &ReconciledStore{tiers: tiers}
}

// ModuleProgress returns the best value among the tiers that answered. A failing tier
// is reported through the error while the value from the others is still returned.
func (s *ReconciledStore) ModuleProgress(ctx context.Context, moduleID string) (int, error) {
	best := 0
	var errs []error
	for _, tier := range s.tiers {
		pct, err := tier.ModuleProgress(ctx, moduleID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pct > best {
			best = pct
		}
	}
	return best, errors.Join(errs...)
}

func (s *ReconciledStore) SaveModuleProgress(ctx context.Context, moduleID string, pct int) error {
	var errs []error
	for _, tier := range s.tiers {
		if err := tier.SaveModuleProgress(ctx, moduleID, pct); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordModuleProgress gates pct against the reconciled value and writes it to every
// tier when accepted. It returns the effective value after the call.
func (s *ReconciledStore) RecordModuleProgress(ctx context.Context, moduleID string, pct int) (int, bool, error) {
	known, readErr := s.ModuleProgress(ctx, moduleID)
	if !Accept(pct, known) {
		return known, false, readErr
	}
	return pct, true, errors.Join(readErr, s.SaveModuleProgress(ctx, moduleID, pct))
}

func (s *ReconciledStore) QuizProgress(ctx context.Context, threatID string) (domain.QuizProgress, bool, error) {
	var (
		merged domain.QuizProgress
		found  bool
		errs   []error
	)
	for _, tier := range s.tiers {
		q, ok, err := tier.QuizProgress(ctx, threatID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if !found {
			merged, found = q, true
			continue
		}
		merged = merged.Merge(q)
	}
	return merged, found, errors.Join(errs...)
}

func (s *ReconciledStore) SaveQuizProgress(ctx context.Context, threatID string, score int, completed bool) error {
	var errs []error
	for _, tier := range s.tiers {
		if err := tier.SaveQuizProgress(ctx, threatID, score, completed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RecordQuizProgress writes an attempt to every tier and reports whether it improved the
// best score or completed the quiz for the first time.
func (s *ReconciledStore) RecordQuizProgress(ctx context.Context, threatID string, score int, completed bool) (bool, domain.QuizProgress, error) {
	prev, _, readErr := s.QuizProgress(ctx, threatID)
	improved := Accept(score, prev.BestScore) || (completed && !prev.Completed)
	writeErr := s.SaveQuizProgress(ctx, threatID, score, completed)
	next := prev
	next.ThreatID = threatID
	next.LastScore = score
	if Accept(score, next.BestScore) {
		next.BestScore = score
	}
	next.Completed = next.Completed || completed
	return improved, next, errors.Join(readErr, writeErr)
}

func (s *ReconciledStore) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	out := domain.Snapshot{
		Modules: make(map[string]int),
		Quizzes: make(map[string]domain.QuizProgress),
	}
	var errs []error
	for _, tier := range s.tiers {
		snap, err := tier.Snapshot(ctx)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for id, pct := range snap.Modules {
			if pct > out.Modules[id] {
				out.Modules[id] = pct
			}
		}
		for id, q := range snap.Quizzes {
			if existing, ok := out.Quizzes[id]; ok {
				out.Quizzes[id] = existing.Merge(q)
			} else {
				out.Quizzes[id] = q
			}
		}
	}
	return out, errors.Join(errs...)
}
