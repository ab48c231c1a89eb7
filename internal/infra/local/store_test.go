package local_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cybershield-progress/internal/domain"
	"cybershield-progress/internal/infra/local"
	"cybershield-progress/internal/infra/memory"
)

func TestStoreKeepsHigherModuleProgress(t *testing.T) {
	ctx := context.Background()
	store := local.NewStore(memory.NewKeyValue())

	if err := store.SaveModuleProgress(ctx, "phishing", 55); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.SaveModuleProgress(ctx, "phishing", 30); err != nil {
		t.Fatalf("save lower: %v", err)
	}
	pct, err := store.ModuleProgress(ctx, "phishing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pct != 55 {
		t.Fatalf("expected 55, got %d", pct)
	}
}

func TestStoreQuizBestAndStickyCompletion(t *testing.T) {
	ctx := context.Background()
	store := local.NewStore(memory.NewKeyValue())

	_ = store.SaveQuizProgress(ctx, "phishing", 8, true)
	_ = store.SaveQuizProgress(ctx, "phishing", 6, false)

	q, ok, err := store.QuizProgress(ctx, "phishing")
	if err != nil || !ok {
		t.Fatalf("read quiz: ok=%v err=%v", ok, err)
	}
	if q.BestScore != 8 || q.LastScore != 6 || !q.Completed {
		t.Fatalf("unexpected quiz progress %+v", q)
	}
	if q.CompletedAt == nil {
		t.Fatalf("expected completedAt to be set")
	}
}

func TestStoreCorruptValueReadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValue()
	_ = kv.Set(ctx, local.ModuleProgressKey, []byte("{not json"))
	store := local.NewStore(kv)

	pct, err := store.ModuleProgress(ctx, "phishing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pct != 0 {
		t.Fatalf("expected 0 for corrupt storage, got %d", pct)
	}
	if store.HasAnyProgress(ctx) {
		t.Fatalf("expected no progress")
	}

	if err := store.SaveModuleProgress(ctx, "phishing", 10); err != nil {
		t.Fatalf("save over corrupt value: %v", err)
	}
	if pct, _ := store.ModuleProgress(ctx, "phishing"); pct != 10 {
		t.Fatalf("expected 10, got %d", pct)
	}
}

func TestStoreNullValueReadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValue()
	_ = kv.Set(ctx, local.ModuleProgressKey, []byte("null"))
	_ = kv.Set(ctx, local.QuizProgressKey, []byte("null"))
	store := local.NewStore(kv)

	if store.HasAnyProgress(ctx) {
		t.Fatalf("expected no progress for null values")
	}
	if err := store.SaveModuleProgress(ctx, "phishing", 40); err != nil {
		t.Fatalf("save module over null: %v", err)
	}
	if err := store.SaveQuizProgress(ctx, "phishing", 5, true); err != nil {
		t.Fatalf("save quiz over null: %v", err)
	}
	if pct, _ := store.ModuleProgress(ctx, "phishing"); pct != 40 {
		t.Fatalf("expected 40, got %d", pct)
	}
	q, ok, _ := store.QuizProgress(ctx, "phishing")
	if !ok || q.BestScore != 5 || !q.Completed {
		t.Fatalf("unexpected quiz progress %+v ok=%v", q, ok)
	}
}

func TestStoreClearAll(t *testing.T) {
	ctx := context.Background()
	store := local.NewStore(memory.NewKeyValue())
	_ = store.SaveModuleProgress(ctx, "ransomware", 40)
	_ = store.SaveQuizProgress(ctx, "ransomware", 3, false)
	if !store.HasAnyProgress(ctx) {
		t.Fatalf("expected progress before clear")
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	snap, err := store.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if !snap.Empty() {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}
}

func TestPendingStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	pending := local.NewPendingStore(memory.NewKeyValue(), 0, nil)

	entry := domain.PendingTransfer{ThreatID: "phishing", Score: 8, SelectedAnswers: []int{1, 0, 2}, Completed: true}
	if err := pending.Save(ctx, entry); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := pending.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got == nil || got.ThreatID != "phishing" || got.Score != 8 || len(got.SelectedAnswers) != 3 {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.SavedAt.IsZero() {
		t.Fatalf("expected savedAt to be stamped")
	}
}

func TestPendingStoreExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValue()
	stale := domain.PendingTransfer{ThreatID: "phishing", Score: 8, SavedAt: time.Now().Add(-25 * time.Hour)}
	raw, _ := json.Marshal(stale)
	_ = kv.Set(ctx, local.PendingKey, raw)

	pending := local.NewPendingStore(kv, local.PendingTTL, nil)
	got, err := pending.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatalf("expected expired entry to read as nil, got %+v", got)
	}
	if _, ok, _ := kv.Get(ctx, local.PendingKey); ok {
		t.Fatalf("expected expired entry to be deleted")
	}
}

func TestPendingStoreCorruptPayloadClears(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKeyValue()
	_ = kv.Set(ctx, local.PendingKey, []byte("garbage"))

	got, err := local.NewPendingStore(kv, 0, nil).Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for corrupt payload")
	}
	if _, ok, _ := kv.Get(ctx, local.PendingKey); ok {
		t.Fatalf("expected corrupt entry to be deleted")
	}
}
