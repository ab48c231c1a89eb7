package auth

import (
	"context"
	"time"

	"cybershield-progress/internal/domain"
)

// AccountRepository persists accounts. Email and username lookups are case-insensitive.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	ByID(ctx context.Context, id string) (domain.Account, error)
	ByEmail(ctx context.Context, email string) (domain.Account, error)
	UsernameTaken(ctx context.Context, username string) (bool, error)
}

// RevocationStore records signed-out token ids until expiresAt.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// ResetSender delivers a password reset token to the account's owner.
type ResetSender interface {
	SendReset(ctx context.Context, account domain.Account, token string) error
}
