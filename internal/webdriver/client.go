// internal/webdriver/client.go
package webdriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/config"
)

// Client speaks the subset of the W3C WebDriver protocol needed to create,
// probe, and terminate sessions and to forward CDP commands through
// chromedriver's vendor endpoint. It never retries a request.
type Client struct {
	endpoint string
	http     *resty.Client
	logger   *zap.Logger
}

// Status is the readiness report of a WebDriver server.
type Status struct {
	Ready   bool   `json:"ready"`
	Message string `json:"message"`
}

// NewClient prepares a client for endpoint. No network traffic happens until
// the first call.
func NewClient(endpoint string, cfg config.WebDriverConfig, logger *zap.Logger) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid webdriver endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid webdriver endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid webdriver endpoint %q: missing host", endpoint)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("webdriver")

	rc := resty.New().
		SetBaseURL(endpoint).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json; charset=utf-8").
		SetLogger(logger.Sugar()).
		SetDebug(cfg.Debug)
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	if len(cfg.Headers) > 0 {
		rc.SetHeaders(cfg.Headers)
	}
	if cfg.RequestTimeout > 0 {
		rc.SetTimeout(cfg.RequestTimeout)
	}

	return &Client{endpoint: endpoint, http: rc, logger: logger}, nil
}

// Endpoint returns the normalized server URI.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// NewSession asks the server for a new session with the given capabilities and
// returns the id it assigned.
func (c *Client) NewSession(ctx context.Context, caps map[string]interface{}) (string, error) {
	if caps == nil {
		caps = map[string]interface{}{}
	}
	payload := map[string]interface{}{
		"capabilities": map[string]interface{}{
			"firstMatch":  []interface{}{map[string]interface{}{}},
			"alwaysMatch": caps,
		},
	}

	raw, err := c.do(ctx, c.http.R().SetBody(payload), resty.MethodPost, "/session")
	if err != nil {
		return "", err
	}

	// W3C servers nest the id under value; legacy ones put it at the top level.
	var envelope struct {
		SessionID string `json:"sessionId"`
		Value     struct {
			SessionID string `json:"sessionId"`
		} `json:"value"`
	}
	if err := json.Unmarshal(raw.body, &envelope); err != nil {
		return "", fmt.Errorf("failed to decode new session response: %w", err)
	}
	id := envelope.Value.SessionID
	if id == "" {
		id = envelope.SessionID
	}
	if id == "" {
		return "", &Error{StatusCode: raw.status, Code: CodeSessionNotCreated, Message: "response carried no session id"}
	}
	c.logger.Debug("Created WebDriver session.", zap.String("session_id", id))
	return id, nil
}

// DeleteSession ends the session and quits its browser.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req := c.http.R().SetPathParam("sessionId", sessionID)
	_, err := c.do(ctx, req, resty.MethodDelete, "/session/{sessionId}")
	return err
}

// Title reads the current document title. It is the cheapest read that fails
// for a session the server no longer knows.
func (c *Client) Title(ctx context.Context, sessionID string) (string, error) {
	req := c.http.R().SetPathParam("sessionId", sessionID)
	raw, err := c.do(ctx, req, resty.MethodGet, "/session/{sessionId}/title")
	if err != nil {
		return "", err
	}
	var title string
	if len(raw.value) > 0 && string(raw.value) != "null" {
		if err := json.Unmarshal(raw.value, &title); err != nil {
			return "", fmt.Errorf("failed to decode title: %w", err)
		}
	}
	return title, nil
}

// Navigate loads rawURL in the session's current browsing context.
func (c *Client) Navigate(ctx context.Context, sessionID, rawURL string) error {
	req := c.http.R().
		SetPathParam("sessionId", sessionID).
		SetBody(map[string]string{"url": rawURL})
	_, err := c.do(ctx, req, resty.MethodPost, "/session/{sessionId}/url")
	return err
}

// ExecuteCDP forwards one DevTools command through chromedriver and returns
// the raw "value" of the response. The value is nil when the server sent none.
func (c *Client) ExecuteCDP(ctx context.Context, sessionID, method string, params map[string]interface{}) (json.RawMessage, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	req := c.http.R().
		SetPathParam("sessionId", sessionID).
		SetBody(map[string]interface{}{"cmd": method, "params": params})
	raw, err := c.do(ctx, req, resty.MethodPost, "/session/{sessionId}/goog/cdp/execute")
	if err != nil {
		return nil, err
	}
	return raw.value, nil
}

// Status reports whether the server is ready to create sessions.
func (c *Client) Status(ctx context.Context) (Status, error) {
	raw, err := c.do(ctx, c.http.R(), resty.MethodGet, "/status")
	if err != nil {
		return Status{}, err
	}
	var st Status
	if len(raw.value) > 0 {
		if err := json.Unmarshal(raw.value, &st); err != nil {
			return Status{}, fmt.Errorf("failed to decode status: %w", err)
		}
	}
	return st, nil
}

// Close releases idle keep-alive connections. Remote sessions are unaffected.
func (c *Client) Close() error {
	c.http.GetClient().CloseIdleConnections()
	return nil
}

type response struct {
	status int
	body   []byte
	value  json.RawMessage
}

func (c *Client) do(ctx context.Context, req *resty.Request, method, path string) (*response, error) {
	resp, err := req.SetContext(ctx).Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("webdriver %s %s: %w", method, path, err)
	}

	body := resp.Body()
	if resp.IsError() {
		return nil, parseError(resp.StatusCode(), body)
	}

	out := &response{status: resp.StatusCode(), body: body}
	if len(body) == 0 {
		return out, nil
	}
	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("webdriver %s %s: malformed response body: %w", method, path, err)
	}
	out.value = envelope.Value
	return out, nil
}
