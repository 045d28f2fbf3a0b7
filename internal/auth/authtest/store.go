// Package authtest provides in-memory doubles for the credential core.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bookly/authcore/internal/auth"
)

// MemoryStore is a goroutine-safe auth.AccountStore. Guarded updates are
// checked and applied under one lock, mirroring the conditional SQL update.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*auth.Account
	byEmail  map[string]string
	now      func() time.Time

	// Err, when set, is returned by every call.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]*auth.Account{},
		byEmail:  map[string]string{},
		now:      time.Now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, account *auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	account.Email = auth.NormalizeEmail(account.Email)
	if _, ok := s.byEmail[account.Email]; ok {
		return auth.ErrConflict
	}
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.Role == "" {
		account.Role = auth.RoleUser
	}
	now := s.now()
	account.CreatedAt = now
	account.UpdatedAt = now

	stored := *account
	s.accounts[stored.ID] = &stored
	s.byEmail[stored.Email] = stored.ID
	return nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	id, ok := s.byEmail[auth.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	out := *s.accounts[id]
	return &out, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*auth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	account, ok := s.accounts[id]
	if !ok {
		return nil, nil
	}
	out := *account
	return &out, nil
}

func (s *MemoryStore) UpdateFields(_ context.Context, id string, update auth.AccountUpdate, guard *auth.OTPGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	account, ok := s.accounts[id]
	if !ok {
		return auth.ErrNotFound
	}
	if guard != nil && account.Slot(guard.Purpose).CodeHash != guard.CodeHash {
		return auth.ErrConcurrentModification
	}
	update.Apply(account)
	account.UpdatedAt = s.now()
	return nil
}

// Delete removes an account, as an operator would.
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account, ok := s.accounts[id]; ok {
		delete(s.byEmail, account.Email)
		delete(s.accounts, id)
	}
}

// Count returns the number of stored accounts.
func (s *MemoryStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
