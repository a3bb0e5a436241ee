package userstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/authcore-io/authcore"
)

// Memory is an in-process [authcore.UserStore] backed by maps. Intended
// for tests, examples, and single-process tools; records do not survive a
// restart.
type Memory struct {
	mu      sync.RWMutex
	byID    map[string]authcore.User
	byEmail map[string]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:    make(map[string]authcore.User),
		byEmail: make(map[string]string),
	}
}

func (s *Memory) Create(_ context.Context, input authcore.CreateUserInput) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[input.Email]; exists {
		return authcore.User{}, authcore.ErrDuplicateEmail
	}

	user := authcore.User{
		ID:           uuid.NewString(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: input.PasswordHash,
		CreatedAt:    input.CreatedAt,
		UpdatedAt:    input.CreatedAt,
	}

	s.byID[user.ID] = user
	s.byEmail[user.Email] = user.ID

	return user, nil
}

func (s *Memory) FindByEmail(_ context.Context, email string) (authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return s.byID[id], nil
}

func (s *Memory) FindByID(_ context.Context, id string) (authcore.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}
	return user, nil
}

func (s *Memory) Save(_ context.Context, user authcore.User) (authcore.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[user.ID]; !ok {
		return authcore.User{}, authcore.ErrUserNotFound
	}

	s.byID[user.ID] = user
	return user, nil
}

func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.byID[id]
	if !ok {
		return authcore.ErrUserNotFound
	}

	delete(s.byID, id)
	delete(s.byEmail, user.Email)
	return nil
}
