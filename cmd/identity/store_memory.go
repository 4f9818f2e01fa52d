package identity

import (
	"context"
	"sync"
)

// MemoryStore keeps users in process memory. Used by the dev in-memory mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	byName map[string]User
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byName: make(map[string]User)}
}

// FindByUsername loads a user by normalized username.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byName[NormalizeUsername(username)]
	if !ok {
		return User{}, &Error{Op: "identity.FindByUsername", Kind: ErrNotFound}
	}
	return u, nil
}

// CreateUser inserts a user, enforcing username uniqueness.
func (s *MemoryStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := in.normalize(op)
	if err != nil {
		return User{}, err
	}
	id, err := NewUserID(in.Now)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[in.Username]; taken {
		return User{}, &Error{Op: op, Kind: ErrConflict, Field: "username"}
	}
	u := User{
		ID:           id,
		Username:     in.Username,
		RoleName:     in.RoleName,
		PasswordHash: in.PasswordHash,
		CreatedAt:    in.Now,
	}
	s.byName[in.Username] = u
	return u, nil
}
