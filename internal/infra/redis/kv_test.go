package redis

import (
	"context"
	"testing"
	"time"

	"cybershield-progress/internal/infra/local"
	miniredis "github.com/alicebob/miniredis/v2"
)

func TestLocalBackendStoresPerDeviceHash(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	backend := NewLocalBackend(newClient(mr), time.Hour)
	store := local.NewStore(backend.Device("d1"))

	if err := store.SaveModuleProgress(ctx, "phishing", 55); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("device:d1") {
		t.Fatalf("expected device hash to exist")
	}
	if ttl := mr.TTL("device:d1"); ttl != time.Hour {
		t.Fatalf("expected one hour ttl, got %v", ttl)
	}
	if pct, _ := local.NewStore(backend.Device("d2")).ModuleProgress(ctx, "phishing"); pct != 0 {
		t.Fatalf("expected other device to be empty, got %d", pct)
	}

	if err := store.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.HasAnyProgress(ctx) {
		t.Fatalf("expected no progress after clear")
	}
}

func TestRevocationStoreExpiresWithToken(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	store := NewRevocationStore(newClient(mr))
	if err := store.Revoke(ctx, "jti-1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := store.Revoked(ctx, "jti-1"); !revoked {
		t.Fatalf("expected token to be revoked")
	}
	if revoked, _ := store.Revoked(ctx, "jti-2"); revoked {
		t.Fatalf("expected unknown token not to be revoked")
	}

	mr.FastForward(2 * time.Minute)
	if revoked, _ := store.Revoked(ctx, "jti-1"); revoked {
		t.Fatalf("expected revocation to expire with the token")
	}
}
