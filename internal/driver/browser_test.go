package driver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

type remoteRecorder struct {
	mu        sync.Mutex
	navigated []string
	deleted   []string
	navStatus int
}

func newRemote(t *testing.T, rec *remoteRecorder) *webdriver.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /session", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"value":{"sessionId":"s-1","capabilities":{}}}`)
	})
	mux.HandleFunc("POST /session/{id}/url", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			URL string `json:"url"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		rec.mu.Lock()
		rec.navigated = append(rec.navigated, body.URL)
		status := rec.navStatus
		rec.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			_, _ = io.WriteString(w, `{"value":{"error":"unknown error","message":"net::ERR_NAME_NOT_RESOLVED"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"value":null}`)
	})
	mux.HandleFunc("DELETE /session/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.mu.Lock()
		rec.deleted = append(rec.deleted, r.PathValue("id"))
		rec.mu.Unlock()
		_, _ = io.WriteString(w, `{"value":null}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client, err := webdriver.NewClient(srv.URL, config.WebDriverConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestOpenBrowser_NavigatesAndQuits(t *testing.T) {
	rec := &remoteRecorder{}
	client := newRemote(t, rec)

	b, err := OpenBrowser(context.Background(), client, chromeopts.New(), "http://www.google.com/", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "s-1", b.SessionID())
	assert.Equal(t, []string{"http://www.google.com/"}, rec.navigated)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b.Quit(ctx)
	assert.Equal(t, []string{"s-1"}, rec.deleted, "quit runs even after cancellation")
}

func TestOpenBrowser_WithoutStartURL(t *testing.T) {
	rec := &remoteRecorder{}
	client := newRemote(t, rec)

	_, err := OpenBrowser(context.Background(), client, nil, "", nil)
	require.NoError(t, err)
	assert.Empty(t, rec.navigated)
}

func TestOpenBrowser_NavigationFailureQuits(t *testing.T) {
	rec := &remoteRecorder{navStatus: http.StatusInternalServerError}
	client := newRemote(t, rec)

	_, err := OpenBrowser(context.Background(), client, chromeopts.New(), "http://unresolvable.invalid/", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
	assert.Equal(t, []string{"s-1"}, rec.deleted)
}

func TestOpenBrowser_BadExtension(t *testing.T) {
	rec := &remoteRecorder{}
	client := newRemote(t, rec)

	opts := chromeopts.New(chromeopts.WithExtensions("/nonexistent/Dify_Chatbot.crx"))
	_, err := OpenBrowser(context.Background(), client, opts, "", nil)

	assert.ErrorContains(t, err, "failed to read extension")
}
