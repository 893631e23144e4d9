// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/stretchr/testify/mock"
)

// -- Session Store Mock --

// MockSessionStore mocks store.SessionStore.
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockSessionStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// -- WebDriver Transport Mock --

// MockTransport mocks session.Transport. Close calls are counted separately
// so tests can assert a connection was released exactly once without having
// to register an expectation for it.
type MockTransport struct {
	mock.Mock

	mu     sync.Mutex
	closed int
}

func (m *MockTransport) NewSession(ctx context.Context, caps map[string]interface{}) (string, error) {
	args := m.Called(ctx, caps)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) DeleteSession(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func (m *MockTransport) Title(ctx context.Context, sessionID string) (string, error) {
	args := m.Called(ctx, sessionID)
	return args.String(0), args.Error(1)
}

func (m *MockTransport) ExecuteCDP(ctx context.Context, sessionID, method string, params map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, sessionID, method, params)
	var raw json.RawMessage
	switch v := args.Get(0).(type) {
	case json.RawMessage:
		raw = v
	case string:
		raw = json.RawMessage(v)
	}
	return raw, args.Error(1)
}

func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

// CloseCount reports how many times Close was called.
func (m *MockTransport) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// -- CDP Target Mock --

// MockTarget mocks cdp.Target.
type MockTarget struct {
	mock.Mock
}

func (m *MockTarget) ExecuteCDP(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	args := m.Called(ctx, method, params)
	var raw json.RawMessage
	switch v := args.Get(0).(type) {
	case json.RawMessage:
		raw = v
	case string:
		raw = json.RawMessage(v)
	}
	return raw, args.Error(1)
}
