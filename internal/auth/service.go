package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"cybershield-progress/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultTokenTTL = 24 * time.Hour
	resetTokenTTL   = time.Hour
)

// Service signs learners up and in and resolves bearer tokens to identities.
type Service struct {
	accounts AccountRepository
	revoked  RevocationStore
	tokens   *TokenIssuer
	reset    ResetSender
	tokenTTL time.Duration
	now      func() time.Time
}

// NewService wires the service. reset may be nil, in which case reset tokens are logged.
func NewService(accounts AccountRepository, revoked RevocationStore, tokens *TokenIssuer, reset ResetSender, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	if reset == nil {
		reset = LogResetSender{}
	}
	return &Service{
		accounts: accounts,
		revoked:  revoked,
		tokens:   tokens,
		reset:    reset,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (s *Service) SignUp(ctx context.Context, email, password, username string) (domain.AuthSession, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.AuthSession{}, err
	}
	if err := ValidateUsername(username); err != nil {
		return domain.AuthSession{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return domain.AuthSession{}, err
	}
	taken, err := s.accounts.UsernameTaken(ctx, username)
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("check username: %w", err)
	}
	if taken {
		return domain.AuthSession{}, domain.ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.AuthSession{}, err
	}
	log.Printf("account created for %s", account.Username)
	return s.session(account)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (domain.AuthSession, error) {
	account, err := s.accounts.ByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return domain.AuthSession{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return domain.AuthSession{}, fmt.Errorf("load account: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)) != nil {
		return domain.AuthSession{}, domain.ErrInvalidCredentials
	}
	return s.session(account)
}

// SignOut revokes the token. An already invalid token is not an error.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token, sessionAudience)
	if err != nil {
		return nil
	}
	return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time)
}

// ResetPassword sends a reset token when the email belongs to an account. Unknown emails
// succeed silently so the endpoint cannot be used to probe for accounts.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	account, err := s.accounts.ByEmail(ctx, email)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}
	token, _, _, err := s.tokens.Issue(identityOf(account), resetAudience, resetTokenTTL)
	if err != nil {
		return err
	}
	return s.reset.SendReset(ctx, account, token)
}

// IsUsernameAvailable reports false for a candidate that fails validation.
func (s *Service) IsUsernameAvailable(ctx context.Context, candidate string) (bool, error) {
	if ValidateUsername(candidate) != nil {
		return false, nil
	}
	taken, err := s.accounts.UsernameTaken(ctx, candidate)
	if err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return !taken, nil
}

// Verify resolves a session token to the identity it was issued for.
func (s *Service) Verify(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := s.tokens.Parse(token, sessionAudience)
	if err != nil {
		return domain.Identity{}, err
	}
	revoked, err := s.revoked.Revoked(ctx, claims.ID)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.Identity{}, domain.ErrInvalidToken
	}
	return domain.Identity{LearnerID: claims.Subject, Username: claims.Username}, nil
}

func (s *Service) session(account domain.Account) (domain.AuthSession, error) {
	identity := identityOf(account)
	token, _, expiresAt, err := s.tokens.Issue(identity, sessionAudience, s.tokenTTL)
	if err != nil {
		return domain.AuthSession{}, err
	}
	return domain.AuthSession{Token: token, ExpiresAt: expiresAt, Identity: identity}, nil
}

func identityOf(account domain.Account) domain.Identity {
	return domain.Identity{LearnerID: account.ID, Username: account.Username}
}

// LogResetSender writes reset tokens to the process log. Development only.
type LogResetSender struct{}

func (LogResetSender) SendReset(_ context.Context, account domain.Account, token string) error {
	log.Printf("password reset for %s: /auth?reset=true&token=%s", account.Email, token)
	return nil
}
