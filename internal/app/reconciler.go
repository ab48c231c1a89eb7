package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"cybershield-progress/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDebounce is how long module progress settles before it is written remotely.
	DefaultDebounce = time.Second
	// DefaultWriteTimeout bounds a remote write issued from a debounce timer.
	DefaultWriteTimeout = 10 * time.Second

	migrationConcurrency = 4
)

// ReconcilerDeps are the stores a learner session reconciles between.
type ReconcilerDeps struct {
	Session SessionTier
	Local   DurableTier
	Pending PendingTransfers
	Remote  RemoteProgressService
	Quizzes QuizRepository
}

// ReconcilerConfig tunes timing and reporting. Zero values pick defaults.
type ReconcilerConfig struct {
	Debounce     time.Duration
	WriteTimeout time.Duration
	Clock        Clock
	Logger       *log.Logger
	NewID        func() string
	// OnWriteError receives failures of debounced remote writes, which have no caller
	// to return to. It runs with the reconciler locked and must not call back into it.
	OnWriteError func(moduleID string, err error)
}

// Reconciler tracks one learner session: it decides which tier answers a read, gates
// and routes writes, debounces remote module writes and applies optimistic cache
// updates that roll back when the remote write fails.
type Reconciler struct {
	session SessionTier
	local   DurableTier
	pending PendingTransfers
	remote  RemoteProgressService
	quizzes QuizRepository

	clock        Clock
	writeTimeout time.Duration
	logger       *log.Logger
	newID        func() string
	onWriteError func(string, error)
	debouncer    *Debouncer

	mu        sync.Mutex
	identity  domain.Identity
	active    string
	lastSent  map[string]int
	replayed  map[string]bool
	modules   Cell[[]domain.ModuleProgress]
	quizCache Cell[[]domain.QuizProgress]
}

func NewReconciler(deps ReconcilerDeps, cfg ReconcilerConfig) *Reconciler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	r := &Reconciler{
		session:      deps.Session,
		local:        deps.Local,
		pending:      deps.Pending,
		remote:       deps.Remote,
		quizzes:      deps.Quizzes,
		clock:        cfg.Clock,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
		newID:        cfg.NewID,
		onWriteError: cfg.OnWriteError,
		debouncer:    NewDebouncer(cfg.Clock, cfg.Debounce),
		lastSent:     make(map[string]int),
		replayed:     make(map[string]bool),
	}
	if r.onWriteError == nil {
		r.onWriteError = func(moduleID string, err error) {
			r.logger.Printf("module %s progress not saved: %v", moduleID, err)
		}
	}
	return r
}

// Identity returns who the session currently acts for.
func (r *Reconciler) Identity() domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

// ActiveModule returns the module currently being viewed, if any.
func (r *Reconciler) ActiveModule() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Reconciler) guestStore() *ReconciledStore {
	return NewReconciledStore(r.session, r.local)
}

func (r *Reconciler) remoteStore() *RemoteStore {
	return NewRemoteStore(r.remote, r.identity.LearnerID)
}

func (r *Reconciler) readStoreLocked() *ReconciledStore {
	if r.identity.Guest() {
		return r.guestStore()
	}
	return NewReconciledStore(r.session, r.remoteStore())
}

// OpenModule makes moduleID the module being viewed and returns its effective progress.
// A different module that was open is left first, flushing its progress.
func (r *Reconciler) OpenModule(ctx context.Context, moduleID string) (int, error) {
	if moduleID == "" {
		return 0, domain.ErrModuleRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != "" && r.active != moduleID {
		prev := r.active
		if err := r.leaveLocked(ctx); err != nil {
			r.onWriteError(prev, err)
		}
	}
	r.active = moduleID

	if r.identity.Guest() {
		return r.guestStore().ModuleProgress(ctx, moduleID)
	}

	ceiling, _ := r.session.ModuleProgress(ctx, moduleID)
	remotePct, err := r.remoteStore().ModuleProgress(ctx, moduleID)
	if err != nil {
		return ceiling, fmt.Errorf("read module %s progress: %w", moduleID, err)
	}
	if remotePct > r.lastSent[moduleID] {
		r.lastSent[moduleID] = remotePct
	}
	if !Accept(remotePct, ceiling) {
		return ceiling, nil
	}
	return remotePct, r.session.SaveModuleProgress(ctx, moduleID, remotePct)
}

// ReportScroll records a scroll sample for the open module and returns the effective
// progress. Guests are written through immediately; authenticated learners get a
// debounced remote write carrying the latest accepted value.
func (r *Reconciler) ReportScroll(ctx context.Context, moduleID string, scrolled, scrollable float64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if moduleID == "" || moduleID != r.active {
		return 0, domain.ErrModuleNotActive
	}
	candidate, ok := ScrollPercentage(scrolled, scrollable)

	if r.identity.Guest() {
		store := r.guestStore()
		if !ok {
			return store.ModuleProgress(ctx, moduleID)
		}
		effective, _, err := store.RecordModuleProgress(ctx, moduleID, candidate)
		return effective, err
	}

	known, err := r.session.ModuleProgress(ctx, moduleID)
	if err != nil {
		return 0, err
	}
	if !ok || !Accept(candidate, known) {
		return known, nil
	}
	if err := r.session.SaveModuleProgress(ctx, moduleID, candidate); err != nil {
		return known, err
	}
	r.debouncer.Schedule(moduleID, func() { r.flushScheduled(moduleID) })
	return candidate, nil
}

// flushScheduled is the debounce callback. moduleID was captured when the write was
// scheduled; the write is dropped if the learner has since moved to another module,
// because leaving a module already flushes it.
func (r *Reconciler) flushScheduled(moduleID string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.identity.Guest() || r.active != moduleID {
		return
	}
	pct, err := r.session.ModuleProgress(ctx, moduleID)
	if err == nil {
		err = r.pushModuleLocked(ctx, moduleID, pct)
	}
	if err != nil {
		r.onWriteError(moduleID, err)
	}
}

// LeaveModule cancels the pending write for the open module and writes its last known
// maximum once.
func (r *Reconciler) LeaveModule(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(ctx)
}

func (r *Reconciler) leaveLocked(ctx context.Context) error {
	moduleID := r.active
	r.active = ""
	if moduleID == "" {
		return nil
	}
	r.debouncer.Cancel(moduleID)
	if r.identity.Guest() {
		return nil
	}
	pct, err := r.session.ModuleProgress(ctx, moduleID)
	if err != nil || pct <= 0 {
		return err
	}
	return r.pushModuleLocked(ctx, moduleID, pct)
}

func (r *Reconciler) pushModuleLocked(ctx context.Context, moduleID string, pct int) error {
	if r.identity.Guest() {
		return domain.ErrNotAuthenticated
	}
	// Same or lower value than the last confirmed write: nothing new to send.
	if !Accept(pct, r.lastSent[moduleID]) {
		return nil
	}
	learnerID := r.identity.LearnerID
	now := r.clock.Now()
	err := Optimistic(ctx, &r.modules,
		func(old []domain.ModuleProgress) []domain.ModuleProgress {
			return upsertModuleRecord(old, domain.ModuleProgress{
				ID:                 r.newID(),
				LearnerID:          learnerID,
				ModuleID:           moduleID,
				ProgressPercentage: pct,
				CreatedAt:          now,
				UpdatedAt:          now,
			})
		},
		func(ctx context.Context) error {
			_, err := r.remote.UpsertModuleProgress(ctx, learnerID, moduleID, pct)
			return err
		},
	)
	if err != nil {
		return fmt.Errorf("save module %s progress: %w", moduleID, err)
	}
	r.lastSent[moduleID] = pct
	return nil
}

// ModuleProgress returns the effective progress for one module.
func (r *Reconciler) ModuleProgress(ctx context.Context, moduleID string) (int, error) {
	if moduleID == "" {
		return 0, domain.ErrModuleRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readStoreLocked().ModuleProgress(ctx, moduleID)
}

// AllModuleProgress returns the overview of every module with progress. For
// authenticated learners it is served from the optimistic read-cache, refetched when
// empty or invalidated, with values observed this session laid over it.
func (r *Reconciler) AllModuleProgress(ctx context.Context) ([]domain.ModuleProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.identity.Guest() {
		snap, err := r.guestStore().Snapshot(ctx)
		return modulesFromSnapshot(snap, r.clock.Now()), err
	}

	cached, _, fresh := r.modules.Get()
	var fetchErr error
	if !fresh {
		list, err := r.remote.ListModuleProgress(ctx, r.identity.LearnerID)
		if err != nil {
			fetchErr = fmt.Errorf("list module progress: %w", err)
		} else {
			r.modules.Set(list)
			cached = list
		}
	}

	out := append([]domain.ModuleProgress(nil), cached...)
	snap, err := r.session.Snapshot(ctx)
	if err != nil {
		return out, errors.Join(fetchErr, err)
	}
	now := r.clock.Now()
	for _, id := range sortedKeys(snap.Modules) {
		out = upsertModuleRecord(out, domain.ModuleProgress{
			ID:                 r.newID(),
			LearnerID:          r.identity.LearnerID,
			ModuleID:           id,
			ProgressPercentage: snap.Modules[id],
			CreatedAt:          now,
			UpdatedAt:          now,
		})
	}
	return out, fetchErr
}

// QuizProgress returns the effective record for one quiz.
func (r *Reconciler) QuizProgress(ctx context.Context, threatID string) (domain.QuizProgress, bool, error) {
	if threatID == "" {
		return domain.QuizProgress{}, false, domain.ErrThreatRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readStoreLocked().QuizProgress(ctx, threatID)
}

// AllQuizProgress returns every quiz record the learner has.
func (r *Reconciler) AllQuizProgress(ctx context.Context) ([]domain.QuizProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.identity.Guest() {
		snap, err := r.guestStore().Snapshot(ctx)
		return quizzesFromSnapshot(snap), err
	}
	if cached, _, fresh := r.quizCache.Get(); fresh {
		return append([]domain.QuizProgress(nil), cached...), nil
	}
	list, err := r.remote.ListQuizProgress(ctx, r.identity.LearnerID)
	if err != nil {
		return nil, fmt.Errorf("list quiz progress: %w", err)
	}
	r.quizCache.Set(list)
	return append([]domain.QuizProgress(nil), list...), nil
}

// CompleteQuiz scores a finished answer sheet and records it. An invalid sheet is
// rejected before anything is written. A failed save does not fail the call: the result
// is returned with Saved=false and SaveErr set.
func (r *Reconciler) CompleteQuiz(ctx context.Context, threatID string, selected []int) (domain.QuizResult, error) {
	if threatID == "" {
		return domain.QuizResult{}, domain.ErrThreatRequired
	}
	quiz, err := r.quizzes.GetQuiz(ctx, threatID)
	if err != nil {
		return domain.QuizResult{}, err
	}
	if err := ValidateAnswers(quiz, selected); err != nil {
		return domain.QuizResult{}, err
	}
	result := ScoreQuiz(quiz, selected)
	result.ThreatID = threatID

	r.mu.Lock()
	defer r.mu.Unlock()

	var saved domain.QuizProgress
	if r.identity.Guest() {
		_, saved, err = r.guestStore().RecordQuizProgress(ctx, threatID, result.Score, true)
	} else {
		saved, err = r.pushQuizLocked(ctx, threatID, result.Score, true)
	}
	result.BestScore = saved.BestScore
	result.Saved = err == nil
	result.SaveErr = err
	return result, nil
}

// pushQuizLocked issues one remote upsert for an attempt. The best score it reports is
// the max of the remote record, the session ceiling and the new score, so a stale
// client view cannot lower it; the service applies the same rule on its side.
func (r *Reconciler) pushQuizLocked(ctx context.Context, threatID string, score int, completed bool) (domain.QuizProgress, error) {
	learnerID := r.identity.LearnerID
	known := domain.QuizProgress{LearnerID: learnerID, ThreatID: threatID}
	existing, found, err := r.remote.GetQuizProgress(ctx, learnerID, threatID)
	if err != nil {
		r.logger.Printf("read quiz %s progress: %v", threatID, err)
	} else if found {
		known = existing
	}
	if ceiling, ok, _ := r.session.QuizProgress(ctx, threatID); ok {
		known = known.Merge(ceiling)
	}

	now := r.clock.Now()
	next := known
	next.LastScore = score
	next.UpdatedAt = now
	if Accept(score, next.BestScore) {
		next.BestScore = score
	}
	if completed && !next.Completed {
		next.Completed = true
		next.CompletedAt = &now
	}
	if err := r.session.SaveQuizProgress(ctx, threatID, score, completed); err != nil {
		r.logger.Printf("record quiz %s in session: %v", threatID, err)
	}

	saved := next
	err = Optimistic(ctx, &r.quizCache,
		func(old []domain.QuizProgress) []domain.QuizProgress {
			return upsertQuizRecord(old, next)
		},
		func(ctx context.Context) error {
			rec, err := r.remote.UpsertQuizProgress(ctx, learnerID, threatID, score, completed)
			if err == nil {
				saved = rec
			}
			return err
		},
	)
	if err != nil {
		return next, fmt.Errorf("save quiz %s progress: %w", threatID, err)
	}
	return saved, nil
}

// SavePendingTransfer buffers a guest quiz result before the guest is sent to sign up
// or sign in.
func (r *Reconciler) SavePendingTransfer(ctx context.Context, entry domain.PendingTransfer) error {
	if entry.ThreatID == "" {
		return domain.ErrThreatRequired
	}
	entry.SelectedAnswers = append([]int(nil), entry.SelectedAnswers...)

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending.Save(ctx, entry)
}

// Authenticate switches the session to an account. Guest progress held in the session
// and durable tiers is written to the remote service; the local tiers are cleared only
// when every write succeeded, otherwise they are kept for the next attempt.
func (r *Reconciler) Authenticate(ctx context.Context, identity domain.Identity) error {
	if identity.Guest() {
		return domain.ErrNotAuthenticated
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.identity.Guest() {
		// session ceilings belong to the previous account
		if err := r.leaveLocked(ctx); err != nil {
			r.logger.Printf("flush before switching account: %v", err)
		}
		r.session.Clear()
	}
	r.identity = identity
	r.lastSent = make(map[string]int)
	r.modules.Reset()
	r.quizCache.Reset()
	return r.migrateGuestLocked(ctx)
}

func (r *Reconciler) migrateGuestLocked(ctx context.Context) error {
	if !r.session.HasAnyProgress() && !r.local.HasAnyProgress(ctx) {
		return nil
	}
	snap, err := r.guestStore().Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("read guest progress: %w", err)
	}

	// A quiz waiting in the pending slot is replayed by ResumeQuiz instead, unless the
	// guest already holds a better record for it than the pending attempt.
	var skipThreat string
	if entry, err := r.pending.Read(ctx); err == nil && entry != nil {
		if q, ok := snap.Quizzes[entry.ThreatID]; !ok || pendingCovers(*entry, q) {
			skipThreat = entry.ThreatID
		}
	}

	learnerID := r.identity.LearnerID
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(migrationConcurrency)
	for moduleID, pct := range snap.Modules {
		if pct <= 0 {
			continue
		}
		moduleID, pct := moduleID, pct
		g.Go(func() error {
			if _, err := r.remote.UpsertModuleProgress(gctx, learnerID, moduleID, pct); err != nil {
				return fmt.Errorf("module %s: %w", moduleID, err)
			}
			return nil
		})
	}
	for threatID, q := range snap.Quizzes {
		if threatID == skipThreat {
			continue
		}
		threatID, q := threatID, q
		g.Go(func() error {
			if _, err := r.remote.UpsertQuizProgress(gctx, learnerID, threatID, q.BestScore, q.Completed); err != nil {
				return fmt.Errorf("quiz %s: %w", threatID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("migrate guest progress: %w", err)
	}

	if err := r.local.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear local progress: %w", err)
	}
	r.session.Clear()
	// The migrated values are now confirmed remotely; keep them as session ceilings.
	for moduleID, pct := range snap.Modules {
		_ = r.session.SaveModuleProgress(ctx, moduleID, pct)
		r.lastSent[moduleID] = pct
	}
	for threatID, q := range snap.Quizzes {
		if threatID != skipThreat {
			_ = r.session.SaveQuizProgress(ctx, threatID, q.BestScore, q.Completed)
		}
	}
	r.logger.Printf("migrated %d module and %d quiz records to learner %s", len(snap.Modules), len(snap.Quizzes), learnerID)
	return nil
}

// ResumeQuiz replays a pending guest result into the account when the learner returns
// from authentication with applyTransfer set. The replay happens at most once per
// pending entry: the entry is deleted on success, and a per-entry guard stops repeated
// calls from upserting again even if deletion failed.
func (r *Reconciler) ResumeQuiz(ctx context.Context, threatID string, applyTransfer bool) (*domain.QuizRestore, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.identity.Guest() || !applyTransfer || threatID == "" {
		return nil, nil
	}
	entry, err := r.pending.Read(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.ThreatID != threatID {
		return nil, nil
	}
	key := entry.ThreatID + "@" + entry.SavedAt.UTC().Format(time.RFC3339Nano)
	if r.replayed[key] {
		return nil, nil
	}
	r.replayed[key] = true

	if _, err := r.pushQuizLocked(ctx, entry.ThreatID, entry.Score, entry.Completed); err != nil {
		return nil, fmt.Errorf("apply pending transfer: %w", err)
	}
	if err := r.pending.Clear(ctx); err != nil {
		r.logger.Printf("clear pending transfer: %v", err)
	}
	return &domain.QuizRestore{
		ThreatID:        entry.ThreatID,
		SelectedAnswers: append([]int(nil), entry.SelectedAnswers...),
		Score:           entry.Score,
		ShowResults:     entry.Completed,
	}, nil
}

// SignOut flushes the open module and returns the session to guest mode.
func (r *Reconciler) SignOut(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.leaveLocked(ctx)
	r.debouncer.Stop()
	r.identity = domain.Identity{}
	r.lastSent = make(map[string]int)
	r.modules.Reset()
	r.quizCache.Reset()
	r.session.Clear()
	return err
}

// Close leaves the open module and stops every timer. The reconciler must not be used
// afterwards.
func (r *Reconciler) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.leaveLocked(ctx)
	r.debouncer.Stop()
	return err
}

// pendingCovers reports whether replaying entry records everything q holds.
func pendingCovers(entry domain.PendingTransfer, q domain.QuizProgress) bool {
	return q.BestScore <= entry.Score && (!q.Completed || entry.Completed)
}

func upsertModuleRecord(old []domain.ModuleProgress, rec domain.ModuleProgress) []domain.ModuleProgress {
	out := make([]domain.ModuleProgress, 0, len(old)+1)
	found := false
	for _, p := range old {
		if p.ModuleID == rec.ModuleID {
			found = true
			if rec.ProgressPercentage > p.ProgressPercentage {
				p.ProgressPercentage = rec.ProgressPercentage
				p.UpdatedAt = rec.UpdatedAt
			}
		}
		out = append(out, p)
	}
	if !found {
		out = append(out, rec)
	}
	return out
}

func upsertQuizRecord(old []domain.QuizProgress, rec domain.QuizProgress) []domain.QuizProgress {
	out := make([]domain.QuizProgress, 0, len(old)+1)
	found := false
	for _, q := range old {
		if q.ThreatID == rec.ThreatID {
			found = true
			q = rec
		}
		out = append(out, q)
	}
	if !found {
		out = append(out, rec)
	}
	return out
}

func modulesFromSnapshot(snap domain.Snapshot, now time.Time) []domain.ModuleProgress {
	out := make([]domain.ModuleProgress, 0, len(snap.Modules))
	for _, id := range sortedKeys(snap.Modules) {
		out = append(out, domain.ModuleProgress{
			ModuleID:           id,
			ProgressPercentage: snap.Modules[id],
			UpdatedAt:          now,
		})
	}
	return out
}

func quizzesFromSnapshot(snap domain.Snapshot) []domain.QuizProgress {
	ids := make([]string, 0, len(snap.Quizzes))
	for id := range snap.Quizzes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]domain.QuizProgress, 0, len(ids))
	for _, id := range ids {
		q := snap.Quizzes[id]
		q.ThreatID = id
		out = append(out, q)
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
