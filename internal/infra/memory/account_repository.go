package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"cybershield-progress/internal/domain"
)

// AccountRepository is an in-memory auth.AccountRepository.
type AccountRepository struct {
	mu         sync.RWMutex
	byID       map[string]domain.Account
	byEmail    map[string]string
	byUsername map[string]string
}

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:       make(map[string]domain.Account),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := strings.ToLower(account.Email)
	username := strings.ToLower(account.Username)
	if _, ok := r.byEmail[email]; ok {
		return domain.ErrEmailTaken
	}
	if _, ok := r.byUsername[username]; ok {
		return domain.ErrUsernameTaken
	}
	r.byID[account.ID] = account
	r.byEmail[email] = account.ID
	r.byUsername[username] = account.ID
	return nil
}

func (r *AccountRepository) ByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.byID[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return account, nil
}

func (r *AccountRepository) ByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return r.byID[id], nil
}

func (r *AccountRepository) UsernameTaken(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUsername[strings.ToLower(username)]
	return ok, nil
}

// RevocationStore remembers revoked token ids until they would have expired anyway.
type RevocationStore struct {
	now func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time
}

func NewRevocationStore() *RevocationStore {
	return &RevocationStore{now: time.Now, revoked: make(map[string]time.Time)}
}

func (s *RevocationStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.revoked {
		if !exp.After(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[tokenID] = expiresAt
	return nil
}

func (s *RevocationStore) Revoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.revoked[tokenID]
	return ok && exp.After(s.now()), nil
}
