package auth

import (
	"errors"
	"testing"
	"time"

	"cybershield-progress/internal/domain"
)

func newIssuer(t *testing.T, secret string) *TokenIssuer {
	t.Helper()
	issuer, err := NewTokenIssuer(secret, "cybershield")
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	return issuer
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := newIssuer(t, "test-secret-0123456789")

	raw, id, expiresAt, err := issuer.Issue(domain.Identity{LearnerID: "u1", Username: "alice"}, sessionAudience, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := issuer.Parse(raw, sessionAudience)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" || claims.Username != "alice" {
		t.Fatalf("unexpected claims: subject=%q username=%q", claims.Subject, claims.Username)
	}
	if claims.ID != id {
		t.Fatalf("expected token id %q, got %q", id, claims.ID)
	}
	if diff := claims.ExpiresAt.Time.Sub(expiresAt); diff > time.Second || diff < -time.Second {
		t.Fatalf("expected expiry near %v, got %v", expiresAt, claims.ExpiresAt.Time)
	}
}

func TestTokenIssuerRejectsExpiredAndForeign(t *testing.T) {
	issuer := newIssuer(t, "test-secret-0123456789")
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	raw, _, _, err := issuer.Issue(domain.Identity{LearnerID: "u1"}, sessionAudience, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := issuer.Parse(raw, sessionAudience); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}

	other := newIssuer(t, "another-secret-0123456789")
	other.now = issuer.now
	foreign, _, _, err := other.Issue(domain.Identity{LearnerID: "u1"}, sessionAudience, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Parse(foreign, sessionAudience); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign token, got %v", err)
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("short", "cybershield"); err == nil {
		t.Fatal("expected error for short secret")
	}
}
