// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/chromelink/internal/cdp"
	"github.com/xkilldash9x/chromelink/internal/mocks"
	"github.com/xkilldash9x/chromelink/internal/session"
	"github.com/xkilldash9x/chromelink/internal/store"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testURI = "http://webdriver.test:4444"

// -- Fake WebDriver server --

// fakeServer behaves like a WebDriver endpoint: it allocates session ids,
// remembers which are alive and records every call.
type fakeServer struct {
	mu sync.Mutex

	next     int
	alive    map[string]bool
	created  []string
	deleted  []string
	probed   []string
	executed []string // session ids commands were sent to
	dials    int
	closes   int

	newSessionErr error
	result        json.RawMessage
	execErr       error
}

func newFakeServer() *fakeServer {
	return &fakeServer{alive: make(map[string]bool), result: json.RawMessage(`{"ok":true}`)}
}

func (f *fakeServer) dialer() session.Dialer {
	return session.DialerFunc(func(ctx context.Context, endpoint string) (session.Transport, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.dials++
		return &fakeConn{server: f}, nil
	})
}

type fakeConn struct{ server *fakeServer }

func (c *fakeConn) NewSession(ctx context.Context, caps map[string]interface{}) (string, error) {
	f := c.server
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newSessionErr != nil {
		return "", f.newSessionErr
	}
	f.next++
	id := fmt.Sprintf("session-%d", f.next)
	f.alive[id] = true
	f.created = append(f.created, id)
	return id, nil
}

func (c *fakeConn) DeleteSession(ctx context.Context, id string) error {
	f := c.server
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	if !f.alive[id] {
		return &webdriver.Error{StatusCode: 404, Code: webdriver.CodeInvalidSessionID}
	}
	delete(f.alive, id)
	return nil
}

func (c *fakeConn) Title(ctx context.Context, id string) (string, error) {
	f := c.server
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probed = append(f.probed, id)
	if !f.alive[id] {
		return "", &webdriver.Error{StatusCode: 404, Code: webdriver.CodeInvalidSessionID, Message: "invalid session id"}
	}
	return "about:blank", nil
}

func (c *fakeConn) ExecuteCDP(ctx context.Context, id, method string, params map[string]interface{}) (json.RawMessage, error) {
	f := c.server
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, id)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return f.result, nil
}

func (c *fakeConn) Close() error {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	c.server.closes++
	return nil
}

// -- Helpers --

func setupOrchestrator(t *testing.T, server *fakeServer, st store.SessionStore) (*Orchestrator, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	o, err := New(server.dialer(), st, store.Key("test"), zap.New(core), nil)
	require.NoError(t, err)
	return o, logs
}

func storedValue(t *testing.T, st store.SessionStore) string {
	t.Helper()
	raw, err := st.Get(context.Background(), store.Key("test"))
	if errors.Is(err, store.ErrNotFound) {
		return ""
	}
	require.NoError(t, err)
	return string(raw)
}

var creds = Credentials{URI: testURI}

// -- Tests --

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(nil, store.NewMemoryStore(), "", nil, nil)
	assert.Error(t, err)

	o, err := New(newFakeServer().dialer(), store.NewMemoryStore(), "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, store.SessionKey, o.key)
}

func TestInvoke_MissingURIShortCircuits(t *testing.T) {
	server := newFakeServer()
	st := new(mocks.MockSessionStore)
	o, _ := setupOrchestrator(t, server, st)

	for _, uri := range []string{"", "   "} {
		msg := o.Invoke(context.Background(), Credentials{URI: uri}, `{"cmd": "Page.enable"}`)
		assert.Equal(t, MessageText, msg.Kind)
		assert.Equal(t, "Error: chromedriver_uri is not configured.", msg.Text)
		assert.ErrorIs(t, msg.Err, ErrConfiguration)
	}
	assert.Zero(t, server.dials)
	st.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
	assert.ErrorIs(t, Credentials{}.Validate(), ErrConfiguration)
}

func TestInvoke_MissingCommand(t *testing.T) {
	server := newFakeServer()
	o, _ := setupOrchestrator(t, server, store.NewMemoryStore())

	msg := o.Invoke(context.Background(), creds, " ")

	assert.Equal(t, "Error: 'command' parameter is required.", msg.Text)
	assert.Zero(t, server.dials)
}

func TestInvoke_MalformedCommandNeverTouchesSession(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		wantText string
	}{
		{name: "not json", command: "not json", wantText: "invalid json format: "},
		{name: "missing cmd", command: `{"args": {}}`, wantText: "'cmd' key is missing or not a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newFakeServer()
			st := new(mocks.MockSessionStore)
			o, _ := setupOrchestrator(t, server, st)

			msg := o.Invoke(context.Background(), creds, tt.command)

			assert.Equal(t, MessageText, msg.Kind)
			assert.Contains(t, msg.Text, tt.wantText)
			assert.Error(t, msg.Err)
			assert.Zero(t, server.dials, "no network call")
			st.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
			st.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything)
			st.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}

func TestInvoke_NoStoredIDCreatesOnce(t *testing.T) {
	server := newFakeServer()
	st := store.NewMemoryStore()
	o, _ := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Browser.getVersion"}`)

	assert.Equal(t, MessageJSON, msg.Kind)
	assert.Equal(t, "{\n  \"ok\": true\n}", msg.Text)
	assert.NoError(t, msg.Err)
	assert.Equal(t, []string{"session-1"}, server.created)
	assert.Empty(t, server.probed, "recovery is never attempted")
	assert.Equal(t, []string{"session-1"}, server.executed)
	assert.Equal(t, "session-1", storedValue(t, st))
	assert.Equal(t, server.dials, server.closes, "every connection is released")
}

func TestInvoke_LiveStoredIDIsReused(t *testing.T) {
	server := newFakeServer()
	server.alive["stored-1"] = true
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(context.Background(), store.Key("test"), []byte("stored-1")))
	o, _ := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.reload"}`)

	assert.Equal(t, MessageJSON, msg.Kind)
	assert.Equal(t, []string{"stored-1"}, server.probed)
	assert.Equal(t, []string{"session-1"}, server.created, "only the zombie was created")
	assert.Equal(t, []string{"session-1"}, server.deleted, "the zombie was terminated once")
	assert.Equal(t, []string{"stored-1"}, server.executed)
	assert.Equal(t, "stored-1", storedValue(t, st))
	assert.Equal(t, 1, server.dials)
	assert.Equal(t, 1, server.closes)
}

func TestInvoke_DeadStoredIDIsReplaced(t *testing.T) {
	server := newFakeServer()
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(context.Background(), store.Key("test"), []byte("gone")))
	o, _ := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.reload"}`)

	assert.Equal(t, MessageJSON, msg.Kind)
	assert.Equal(t, []string{"gone"}, server.probed)
	assert.Equal(t, []string{"session-1", "session-2"}, server.created, "one zombie, one fresh session")
	assert.Equal(t, []string{"session-1"}, server.deleted)
	assert.Equal(t, []string{"session-2"}, server.executed)
	assert.Equal(t, "session-2", storedValue(t, st))
	assert.Equal(t, server.dials, server.closes)
}

func TestInvoke_DeadStoredIDWithMissingKeyStillCreates(t *testing.T) {
	server := newFakeServer()
	st := new(mocks.MockSessionStore)
	st.On("Exists", mock.Anything, store.Key("test")).Return(true, nil).Once()
	st.On("Get", mock.Anything, store.Key("test")).Return([]byte("gone"), nil).Once()
	st.On("Delete", mock.Anything, store.Key("test")).Return(store.ErrNotFound).Once()
	st.On("Set", mock.Anything, store.Key("test"), []byte("session-2")).Return(nil).Once()
	o, _ := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.reload"}`)

	assert.Equal(t, MessageJSON, msg.Kind)
	assert.Equal(t, []string{"session-2"}, server.executed)
	st.AssertExpectations(t)
}

func TestInvoke_StoreReadFailureMeansNoStoredID(t *testing.T) {
	server := newFakeServer()
	st := new(mocks.MockSessionStore)
	st.On("Exists", mock.Anything, mock.Anything).Return(false, errors.New("disk I/O error")).Once()
	st.On("Set", mock.Anything, store.Key("test"), []byte("session-1")).Return(nil).Once()
	o, logs := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.enable"}`)

	assert.Equal(t, MessageJSON, msg.Kind)
	assert.Empty(t, server.probed)
	assert.Equal(t, 1, logs.FilterMessage("Could not check for a stored session.").Len())
	st.AssertExpectations(t)
}

func TestInvoke_CreationFailure(t *testing.T) {
	server := newFakeServer()
	server.newSessionErr = &webdriver.Error{StatusCode: 500, Code: webdriver.CodeSessionNotCreated, Message: "Chrome failed to start"}
	st := store.NewMemoryStore()
	o, _ := setupOrchestrator(t, server, st)

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.enable"}`)

	assert.Equal(t, MessageText, msg.Kind)
	assert.Equal(t, "Error: Failed to create a new session: webdriver: session not created: Chrome failed to start", msg.Text)
	var creationErr *session.CreationError
	assert.ErrorAs(t, msg.Err, &creationErr)
	assert.Empty(t, storedValue(t, st))
	assert.Equal(t, server.dials, server.closes)
}

func TestInvoke_ExecutionFailure(t *testing.T) {
	server := newFakeServer()
	server.execErr = &webdriver.Error{StatusCode: 500, Code: webdriver.CodeUnknownError, Message: "'Nope.nothing' wasn't found"}
	o, _ := setupOrchestrator(t, server, store.NewMemoryStore())

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Nope.nothing"}`)

	assert.Equal(t, MessageText, msg.Kind)
	assert.Equal(t, "Command 'Nope.nothing' execution failed: webdriver: unknown error: 'Nope.nothing' wasn't found", msg.Text)
	assert.Len(t, server.executed, 1, "commands are never retried")
	var execErr *cdp.ExecutionError
	assert.ErrorAs(t, msg.Err, &execErr)
}

func TestInvoke_ScreenshotBecomesBlob(t *testing.T) {
	server := newFakeServer()
	png := []byte("\x89PNG\r\n\x1a\nfake")
	server.result = json.RawMessage(`{"data":"` + base64.StdEncoding.EncodeToString(png) + `"}`)
	o, _ := setupOrchestrator(t, server, store.NewMemoryStore())

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.captureScreenshot"}`)

	assert.Equal(t, MessageBlob, msg.Kind)
	assert.Equal(t, "image/png", msg.MimeType)
	assert.Equal(t, png, msg.Blob)
}

func TestInvoke_NullResult(t *testing.T) {
	server := newFakeServer()
	server.result = json.RawMessage(`null`)
	o, _ := setupOrchestrator(t, server, store.NewMemoryStore())

	msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.enable"}`)

	assert.Equal(t, MessageText, msg.Kind)
	assert.Equal(t, cdp.NoOutputMessage, msg.Text)
}

func TestInvoke_CancelledBeforeStart(t *testing.T) {
	server := newFakeServer()
	st := store.NewMemoryStore()
	require.NoError(t, st.Set(context.Background(), store.Key("test"), []byte("stored-1")))
	o, _ := setupOrchestrator(t, server, st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg := o.Invoke(ctx, creds, `{"cmd": "Page.enable"}`)

	assert.Equal(t, MessageText, msg.Kind)
	assert.Contains(t, msg.Text, context.Canceled.Error())
	assert.ErrorIs(t, msg.Err, context.Canceled)
	assert.Empty(t, server.created)
	assert.Equal(t, "stored-1", storedValue(t, st), "a cancelled invocation keeps the stored id")
}

func TestInvoke_ConcurrentInvocationsShareOneSession(t *testing.T) {
	server := newFakeServer()
	st := store.NewMemoryStore()
	o, _ := setupOrchestrator(t, server, st)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := o.Invoke(context.Background(), creds, `{"cmd": "Page.enable"}`)
			assert.Equal(t, MessageJSON, msg.Kind)
		}()
	}
	wg.Wait()

	// The first invocation creates; the rest reattach through a zombie each.
	assert.Equal(t, "session-1", storedValue(t, st))
	assert.Equal(t, []string{"session-1", "session-1", "session-1", "session-1"}, server.executed)
	assert.Len(t, server.deleted, 3)
}
