package store

import (
	"context"
	"errors"
	"sync"
)

// SessionKey is the fixed name under which the remote session id is stored.
const SessionKey = "chrome_session"

// ErrNotFound is returned by Get and Delete when the key holds no value.
var ErrNotFound = errors.New("store: key not found")

// SessionStore is the narrow persistence contract for one opaque session id
// per key.
type SessionStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend is a SessionStore that owns a connection or file handle.
type Backend interface {
	SessionStore
	Close() error
}

// Key returns the physical key for the session id within scope.
func Key(scope string) string {
	if scope == "" {
		return SessionKey
	}
	return scope + "." + SessionKey
}

// DeleteIgnoringNotFound deletes key and treats a missing key as success.
// deleted reports whether the key was present.
func DeleteIgnoringNotFound(ctx context.Context, s SessionStore, key string) (deleted bool, err error) {
	err = s.Delete(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	}
	return false, err
}

// MemoryStore keeps values in a process-local map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

var _ Backend = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; !ok {
		return ErrNotFound
	}
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
