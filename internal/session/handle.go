// internal/session/handle.go
package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
	"github.com/xkilldash9x/chromelink/internal/webdriver"
)

// Transport is a connection to a WebDriver server. Every call names the
// session it addresses, so one connection can reach any session the server
// knows about.
type Transport interface {
	NewSession(ctx context.Context, caps map[string]interface{}) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Title(ctx context.Context, sessionID string) (string, error)
	ExecuteCDP(ctx context.Context, sessionID, method string, params map[string]interface{}) (json.RawMessage, error)
	Close() error
}

// Dialer opens transports to a WebDriver endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Transport, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, endpoint string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Transport, error) {
	return f(ctx, endpoint)
}

// NewWebDriverDialer dials endpoints with the resty-backed WebDriver client.
func NewWebDriverDialer(cfg config.WebDriverConfig, logger *zap.Logger) Dialer {
	return DialerFunc(func(_ context.Context, endpoint string) (Transport, error) {
		c, err := webdriver.NewClient(endpoint, cfg, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// Handle addresses one remote session through one transport. It is a value:
// WithSessionID returns a copy and never changes the receiver, so the same
// transport can be pointed at two sessions without shared mutable state.
type Handle struct {
	endpoint  string
	transport Transport
	sessionID string
}

// NewHandle is mainly useful to tests and to callers that already know the id.
func NewHandle(endpoint string, transport Transport, sessionID string) Handle {
	return Handle{endpoint: endpoint, transport: transport, sessionID: sessionID}
}

func (h Handle) Endpoint() string  { return h.endpoint }
func (h Handle) SessionID() string { return h.sessionID }

// IsZero reports whether h was never opened.
func (h Handle) IsZero() bool { return h.transport == nil }

// WithSessionID returns a handle on the same transport addressing id.
func (h Handle) WithSessionID(id string) Handle {
	h.sessionID = id
	return h
}

// ExecuteCDP forwards a DevTools command to the addressed session.
func (h Handle) ExecuteCDP(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	if h.transport == nil {
		return nil, fmt.Errorf("session handle is not connected")
	}
	return h.transport.ExecuteCDP(ctx, h.sessionID, method, params)
}

// Probe performs the liveness check: a title read that any live session answers.
func (h Handle) Probe(ctx context.Context) error {
	_, err := h.transport.Title(ctx, h.sessionID)
	return err
}

// Quit ends the addressed remote session.
func (h Handle) Quit(ctx context.Context) error {
	return h.transport.DeleteSession(ctx, h.sessionID)
}

// Close releases the transport. The remote session outlives it.
func (h Handle) Close() error {
	if h.transport == nil {
		return nil
	}
	return h.transport.Close()
}

// open dials endpoint and creates a session with the capabilities rendered
// from opts. On any failure the transport has already been closed.
func open(ctx context.Context, dialer Dialer, endpoint string, opts *chromeopts.LaunchOptions) (Handle, error) {
	if opts == nil {
		opts = chromeopts.New()
	}
	caps, err := opts.Capabilities()
	if err != nil {
		return Handle{}, err
	}

	t, err := dialer.Dial(ctx, endpoint)
	if err != nil {
		return Handle{}, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	id, err := t.NewSession(ctx, caps)
	if err != nil {
		_ = t.Close()
		return Handle{}, err
	}
	return Handle{endpoint: endpoint, transport: t, sessionID: id}, nil
}
