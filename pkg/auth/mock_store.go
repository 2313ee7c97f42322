package auth

import (
	"context"
	"sync"
)

// MockStore is an in-memory TokenStore for tests.
type MockStore struct {
	mu    sync.RWMutex
	token string

	// Error injection for testing
	LoadError   error
	SaveError   error
	DeleteError error

	saves int
}

// NewMockStore returns a store holding token (empty means nothing stored).
func NewMockStore(token string) *MockStore {
	return &MockStore{token: token}
}

func (m *MockStore) Name() string { return "mock" }

func (m *MockStore) Load() (string, error) {
	if m.LoadError != nil {
		return "", m.LoadError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", ErrTokenNotFound
	}
	return m.token, nil
}

func (m *MockStore) Save(token string) error {
	if m.SaveError != nil {
		return m.SaveError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if token == "" {
		return ErrInvalidToken
	}
	m.token = token
	m.saves++
	return nil
}

func (m *MockStore) Delete() error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		return ErrTokenNotFound
	}
	m.token = ""
	return nil
}

// Token returns the stored token.
func (m *MockStore) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Saves counts successful Save calls.
func (m *MockStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// MockAcquirer returns a fixed token or error and counts calls.
type MockAcquirer struct {
	Token string
	Err   error

	mu    sync.Mutex
	calls int
}

func (m *MockAcquirer) Acquire(ctx context.Context) (string, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Token, m.Err
}

// Calls is the number of Acquire calls so far.
func (m *MockAcquirer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
