package repository

import (
	"context"
	"sync"

	"content-with-coffee/backend/internal/user/domain"
)

// MemoryRepository is an in-process Repository guarded by a mutex. For tests and local tooling only.
type MemoryRepository struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]string
	// PingErr is returned by Ping when set.
	PingErr error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.RefreshTokens = append([]string{}, u.RefreshTokens...)
	return &c
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (m *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, nil
	}
	return cloneUser(m.byID[id]), nil
}

func (m *MemoryRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[u.Email]; ok {
		return ErrDuplicateEmail
	}
	m.byID[u.ID] = cloneUser(u)
	m.byEmail[u.Email] = u.ID
	return nil
}

func (m *MemoryRepository) FindOrCreateFederated(ctx context.Context, u *domain.User) (*domain.User, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byEmail[u.Email]; ok {
		return cloneUser(m.byID[id]), nil
	}
	m.byID[u.ID] = cloneUser(u)
	m.byEmail[u.Email] = u.ID
	return cloneUser(u), nil
}

func (m *MemoryRepository) AddRefreshToken(ctx context.Context, userID, digest string, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	tokens := append(u.RefreshTokens, digest)
	if keep > 0 && len(tokens) > keep {
		tokens = append([]string{}, tokens[len(tokens)-keep:]...)
	}
	u.RefreshTokens = tokens
	return nil
}

func (m *MemoryRepository) ConsumeRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(userID, digest), nil
}

func (m *MemoryRepository) HasRefreshToken(ctx context.Context, userID, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	return ok && u.HasRefreshToken(digest), nil
}

func (m *MemoryRepository) RemoveRefreshToken(ctx context.Context, userID, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(userID, digest)
	return nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error {
	return m.PingErr
}

// Delete removes the user with id. It exists for tests that need a user to disappear.
func (m *MemoryRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.byID[id]; ok {
		delete(m.byEmail, u.Email)
		delete(m.byID, id)
	}
}

func (m *MemoryRepository) removeLocked(userID, digest string) bool {
	u, ok := m.byID[userID]
	if !ok {
		return false
	}
	for i, d := range u.RefreshTokens {
		if d == digest {
			u.RefreshTokens = append(u.RefreshTokens[:i:i], u.RefreshTokens[i+1:]...)
			return true
		}
	}
	return false
}
