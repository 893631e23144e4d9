// internal/cdp/executor.go
package cdp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/observability"
)

// NoOutputMessage is reported when a command succeeds without a result.
const NoOutputMessage = "Command executed successfully with no output."

// Target is anything that can run a raw DevTools method.
type Target interface {
	ExecuteCDP(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error)
}

// ExecutionError means the target rejected or failed to run a command.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("Command '%s' execution failed: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ResultKind tells the caller how to present a Result.
type ResultKind int

const (
	ResultText ResultKind = iota
	ResultJSON
	ResultImage
)

func (k ResultKind) String() string {
	switch k {
	case ResultJSON:
		return "json"
	case ResultImage:
		return "image"
	default:
		return "text"
	}
}

// Result is the classified outcome of one command.
type Result struct {
	Kind     ResultKind
	Text     string
	Data     []byte
	MimeType string
}

// Executor forwards commands to a Target and classifies what comes back.
type Executor struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewExecutor creates an executor. metrics may be nil.
func NewExecutor(logger *zap.Logger, metrics *observability.Metrics) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger.Named("cdp"), metrics: metrics}
}

// Execute parses raw and runs it against target.
func (x *Executor) Execute(ctx context.Context, target Target, raw string) (Result, error) {
	cmd, err := ParseCommand(raw)
	if err != nil {
		return Result{}, err
	}
	return x.Run(ctx, target, cmd)
}

// Run sends cmd to target exactly once.
func (x *Executor) Run(ctx context.Context, target Target, cmd Command) (res Result, err error) {
	started := time.Now()
	defer func() { x.metrics.ObserveCommand(started, err) }()

	x.logger.Debug("Forwarding CDP command.", zap.String("method", cmd.Method))

	raw, err := target.ExecuteCDP(ctx, cmd.Method, cmd.Params)
	if err != nil {
		return Result{}, &ExecutionError{Command: cmd.Method, Err: err}
	}

	res, err = classify(cmd.Method, raw)
	if err != nil {
		return Result{}, &ExecutionError{Command: cmd.Method, Err: err}
	}
	x.logger.Debug("CDP command finished.",
		zap.String("method", cmd.Method),
		zap.Stringer("kind", res.Kind),
		zap.Duration("elapsed", time.Since(started)))
	return res, nil
}

func classify(method string, raw json.RawMessage) (Result, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Result{Kind: ResultText, Text: NoOutputMessage}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return Result{}, fmt.Errorf("malformed result: %w", err)
	}

	switch v := value.(type) {
	case map[string]interface{}:
		if method == page.CommandCaptureScreenshot {
			if data, ok := v["data"].(string); ok {
				img, err := base64.StdEncoding.DecodeString(data)
				if err != nil {
					return Result{}, fmt.Errorf("screenshot data is not valid base64: %w", err)
				}
				return Result{Kind: ResultImage, Data: img, MimeType: "image/png"}, nil
			}
		}
		return indented(v)
	case []interface{}:
		return indented(v)
	case string:
		return Result{Kind: ResultText, Text: v}, nil
	default:
		// Numbers and booleans keep their JSON spelling.
		return Result{Kind: ResultText, Text: string(trimmed)}, nil
	}
}

func indented(v interface{}) (Result, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return Result{}, fmt.Errorf("failed to format result: %w", err)
	}
	return Result{Kind: ResultJSON, Text: strings.TrimSuffix(buf.String(), "\n")}, nil
}
