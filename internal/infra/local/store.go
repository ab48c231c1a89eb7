package local

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/domain"
)

const (
	ModuleProgressKey = "cybershield_module_progress"
	QuizProgressKey   = "cybershield_quiz_progress"
)

// KeyValue is string-keyed device storage. Implementations are SQLite, Redis and memory.
type KeyValue interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// Backend scopes storage to one device.
type Backend interface {
	Device(deviceID string) KeyValue
}

type moduleEntry struct {
	ProgressPercentage int       `json:"progressPercentage"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type quizEntry struct {
	Score       int        `json:"score"`
	BestScore   int        `json:"bestScore"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Store is the durable guest tier. Module and quiz progress are kept as two JSON maps
// under fixed keys; a value that fails to decode reads as empty.
type Store struct {
	kv  KeyValue
	now func() time.Time
}

var _ app.DurableTier = (*Store)(nil)

func NewStore(kv KeyValue) *Store {
	return &Store{kv: kv, now: time.Now}
}

func (s *Store) ModuleProgress(ctx context.Context, moduleID string) (int, error) {
	all, err := s.modules(ctx)
	if err != nil {
		return 0, err
	}
	return all[moduleID].ProgressPercentage, nil
}

// SaveModuleProgress writes only when pct is above the stored value.
func (s *Store) SaveModuleProgress(ctx context.Context, moduleID string, pct int) error {
	all, err := s.modules(ctx)
	if err != nil {
		return err
	}
	if pct <= all[moduleID].ProgressPercentage {
		return nil
	}
	all[moduleID] = moduleEntry{ProgressPercentage: pct, UpdatedAt: s.now().UTC()}
	return s.put(ctx, ModuleProgressKey, all)
}

func (s *Store) QuizProgress(ctx context.Context, threatID string) (domain.QuizProgress, bool, error) {
	all, err := s.quizzes(ctx)
	if err != nil {
		return domain.QuizProgress{}, false, err
	}
	entry, ok := all[threatID]
	if !ok {
		return domain.QuizProgress{}, false, nil
	}
	return entry.progress(threatID), true, nil
}

func (s *Store) SaveQuizProgress(ctx context.Context, threatID string, score int, completed bool) error {
	all, err := s.quizzes(ctx)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	entry := all[threatID]
	entry.Score = score
	entry.BestScore = max(entry.BestScore, score)
	if completed && !entry.Completed {
		entry.Completed = true
		entry.CompletedAt = &now
	}
	entry.UpdatedAt = now
	all[threatID] = entry
	return s.put(ctx, QuizProgressKey, all)
}

func (s *Store) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	modules, err := s.modules(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	quizzes, err := s.quizzes(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}
	snap := domain.Snapshot{
		Modules: make(map[string]int, len(modules)),
		Quizzes: make(map[string]domain.QuizProgress, len(quizzes)),
	}
	for id, m := range modules {
		snap.Modules[id] = m.ProgressPercentage
	}
	for id, q := range quizzes {
		snap.Quizzes[id] = q.progress(id)
	}
	return snap, nil
}

// HasAnyProgress treats a storage failure as no progress.
func (s *Store) HasAnyProgress(ctx context.Context) bool {
	snap, err := s.Snapshot(ctx)
	return err == nil && !snap.Empty()
}

func (s *Store) ClearAll(ctx context.Context) error {
	return s.kv.Delete(ctx, ModuleProgressKey, QuizProgressKey)
}

func (s *Store) modules(ctx context.Context) (map[string]moduleEntry, error) {
	out := make(map[string]moduleEntry)
	if err := s.get(ctx, ModuleProgressKey, &out); err != nil {
		return nil, err
	}
	if out == nil {
		// a stored JSON null decodes into a nil map
		out = make(map[string]moduleEntry)
	}
	return out, nil
}

func (s *Store) quizzes(ctx context.Context) (map[string]quizEntry, error) {
	out := make(map[string]quizEntry)
	if err := s.get(ctx, QuizProgressKey, &out); err != nil {
		return nil, err
	}
	if out == nil {
		// a stored JSON null decodes into a nil map
		out = make(map[string]quizEntry)
	}
	return out, nil
}

// get decodes key into dst. Missing or undecodable values leave dst empty.
func (s *Store) get(ctx context.Context, key string, dst any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		clearMap(dst)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func clearMap(dst any) {
	switch m := dst.(type) {
	case *map[string]moduleEntry:
		*m = make(map[string]moduleEntry)
	case *map[string]quizEntry:
		*m = make(map[string]quizEntry)
	}
}

func (e quizEntry) progress(threatID string) domain.QuizProgress {
	return domain.QuizProgress{
		ThreatID:    threatID,
		LastScore:   e.Score,
		BestScore:   e.BestScore,
		Completed:   e.Completed,
		CompletedAt: e.CompletedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}
