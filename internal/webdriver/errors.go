// internal/webdriver/errors.go
package webdriver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// W3C error codes this package inspects.
const (
	CodeInvalidSessionID  = "invalid session id"
	CodeNoSuchWindow      = "no such window"
	CodeSessionNotCreated = "session not created"
	CodeUnknownError      = "unknown error"
	CodeUnknownCommand    = "unknown command"
)

// Error is a failure reported by the WebDriver server itself, as opposed to a
// transport failure reaching it.
type Error struct {
	StatusCode int
	Code       string
	Message    string
	Stacktrace string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("webdriver: %s (HTTP %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("webdriver: %s: %s", e.Code, e.Message)
}

// IsInvalidSession reports whether the server no longer knows the session.
func (e *Error) IsInvalidSession() bool {
	return e.Code == CodeInvalidSessionID
}

// parseError builds an Error from a non-2xx response body. Servers that do not
// answer with the W3C error shape still produce an Error carrying the raw body.
func parseError(status int, body []byte) *Error {
	var envelope struct {
		Value struct {
			Error      string `json:"error"`
			Message    string `json:"message"`
			Stacktrace string `json:"stacktrace"`
		} `json:"value"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Value.Error != "" {
		return &Error{
			StatusCode: status,
			Code:       envelope.Value.Error,
			Message:    envelope.Value.Message,
			Stacktrace: envelope.Value.Stacktrace,
		}
	}

	code := CodeUnknownError
	if status == http.StatusNotFound {
		code = CodeUnknownCommand
	}
	return &Error{StatusCode: status, Code: code, Message: strings.TrimSpace(string(body))}
}
