package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"cybershield-progress/internal/infra/local"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "local.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestDeviceKVSetGetDelete(t *testing.T) {
	ctx := context.Background()
	kv := openTestStore(t).Device("device-1")

	if _, ok, err := kv.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected miss, ok=%v err=%v", ok, err)
	}
	if err := kv.Set(ctx, "k", []byte("one")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "k", []byte("two")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k")
	if err != nil || !ok || string(v) != "two" {
		t.Fatalf("expected two, got %q ok=%v err=%v", v, ok, err)
	}
	if err := kv.Delete(ctx, "k", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestDevicesAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	_ = store.Device("a").Set(ctx, "k", []byte("a"))

	if _, ok, _ := store.Device("b").Get(ctx, "k"); ok {
		t.Fatalf("expected device b not to see device a's key")
	}
}

func TestLocalStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "local.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := local.NewStore(first.Device("d1")).SaveModuleProgress(ctx, "phishing", 70); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	pct, err := local.NewStore(second.Device("d1")).ModuleProgress(ctx, "phishing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pct != 70 {
		t.Fatalf("expected 70 after reopen, got %d", pct)
	}
}
