package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"cybershield-progress/internal/app"
	"cybershield-progress/internal/content"
	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/local"
	"cybershield-progress/internal/infra/memory"
	"cybershield-progress/internal/testutil"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

type moduleWrite struct {
	moduleID string
	pct      int
}

// recordingRemote wraps the in-memory service, records every upsert and can be told to fail.
type recordingRemote struct {
	*memory.ProgressService

	mu           sync.Mutex
	fail         error
	moduleWrites []moduleWrite
	quizWrites   []string
}

func newRecordingRemote() *recordingRemote {
	return &recordingRemote{ProgressService: memory.NewProgressService(nil)}
}

func (r *recordingRemote) setFailure(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *recordingRemote) UpsertModuleProgress(ctx context.Context, learnerID, moduleID string, pct int) (domain.ModuleProgress, error) {
	r.mu.Lock()
	r.moduleWrites = append(r.moduleWrites, moduleWrite{moduleID: moduleID, pct: pct})
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return domain.ModuleProgress{}, fail
	}
	return r.ProgressService.UpsertModuleProgress(ctx, learnerID, moduleID, pct)
}

func (r *recordingRemote) UpsertQuizProgress(ctx context.Context, learnerID, threatID string, score int, completed bool) (domain.QuizProgress, error) {
	r.mu.Lock()
	r.quizWrites = append(r.quizWrites, threatID)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return domain.QuizProgress{}, fail
	}
	return r.ProgressService.UpsertQuizProgress(ctx, learnerID, threatID, score, completed)
}

func (r *recordingRemote) modules() []moduleWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]moduleWrite(nil), r.moduleWrites...)
}

func (r *recordingRemote) quizzes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.quizWrites...)
}

type harness struct {
	clock      *testutil.FakeClock
	session    *memory.SessionStore
	kv         *memory.KeyValue
	local      *local.Store
	pending    *local.PendingStore
	remote     *recordingRemote
	rec        *app.Reconciler
	mu         sync.Mutex
	writeFails []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:  testutil.NewFakeClock(epoch),
		kv:     memory.NewKeyValue(),
		remote: newRecordingRemote(),
	}
	h.session = memory.NewSessionStoreWithClock(h.clock.Now)
	h.local = local.NewStore(h.kv)
	h.pending = local.NewPendingStore(h.kv, local.PendingTTL, nil)
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(content.Quizzes()), time.Minute)

	h.rec = app.NewReconciler(app.ReconcilerDeps{
		Session: h.session,
		Local:   h.local,
		Pending: h.pending,
		Remote:  h.remote,
		Quizzes: quizzes,
	}, app.ReconcilerConfig{
		Debounce: time.Second,
		Clock:    h.clock,
		OnWriteError: func(moduleID string, err error) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.writeFails = append(h.writeFails, moduleID)
		},
	})
	t.Cleanup(func() { _ = h.rec.Close(context.Background()) })
	return h
}

func (h *harness) failures() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.writeFails...)
}

func (h *harness) signIn(t *testing.T, learnerID string) {
	t.Helper()
	if err := h.rec.Authenticate(context.Background(), domain.Identity{LearnerID: learnerID, Username: learnerID}); err != nil {
		t.Fatalf("authenticate %s: %v", learnerID, err)
	}
}

// answerSheet answers the first correct questions of the phishing quiz right and the rest wrong.
func answerSheet(t *testing.T, correct int) []int {
	t.Helper()
	quiz := content.Quizzes()["phishing"]
	sheet := make([]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if i < correct {
			sheet[i] = q.CorrectAnswer
		} else {
			sheet[i] = (q.CorrectAnswer + 1) % len(q.Options)
		}
	}
	return sheet
}
