package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Users implementation for tests and DSN-less
// development. It applies the same lowercase-email matching as the
// postgres implementation.
type Memory struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]*User)}
}

func cloneUser(u *User) *User {
	c := *u
	c.Accounts = append([]LinkedAccount(nil), u.Accounts...)
	return &c
}

func (m *Memory) FindOneByEmail(ctx context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindByID(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *Memory) Create(ctx context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := cloneUser(u)
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.users[c.ID] = c
	return cloneUser(c), nil
}

func (m *Memory) Update(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[u.ID]; !ok {
		return ErrNotFound
	}
	c := cloneUser(u)
	c.UpdatedAt = time.Now()
	m.users[u.ID] = c
	return nil
}
