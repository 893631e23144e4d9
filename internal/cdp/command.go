// internal/cdp/command.go
package cdp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrInvalidCommandFormat means the command input is not a single JSON object
	// or its args field is not an object.
	ErrInvalidCommandFormat = errors.New("invalid json format")
	// ErrMissingCommand means the cmd field is absent, empty, or not a string.
	ErrMissingCommand = errors.New("'cmd' key is missing or not a string")
)

// Command is one DevTools method call.
type Command struct {
	Method string
	Params map[string]interface{}
}

// ParseCommand reads `{"cmd": "Domain.method", "args": {...}}`. Numbers in
// args are kept as json.Number so they are forwarded without loss.
func ParseCommand(raw string) (Command, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrInvalidCommandFormat, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Command{}, fmt.Errorf("%w: unexpected data after the command object", ErrInvalidCommandFormat)
	}

	obj, ok := doc.(map[string]interface{})
	if !ok {
		return Command{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidCommandFormat)
	}

	method, _ := obj["cmd"].(string)
	if method == "" {
		return Command{}, ErrMissingCommand
	}

	params := map[string]interface{}{}
	if rawArgs, present := obj["args"]; present && rawArgs != nil {
		args, ok := rawArgs.(map[string]interface{})
		if !ok {
			return Command{}, fmt.Errorf("%w: 'args' must be a JSON object", ErrInvalidCommandFormat)
		}
		params = args
	}
	return Command{Method: method, Params: params}, nil
}

// String renders the command compactly for logs.
func (c Command) String() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c.Params); err != nil {
		return c.Method
	}
	return c.Method + " " + strings.TrimSpace(buf.String())
}
