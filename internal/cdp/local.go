// internal/cdp/local.go
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chromelink/internal/chromeopts"
	"github.com/xkilldash9x/chromelink/internal/config"
)

// LocalBrowser is a Target backed by a Chrome that chromedp drives directly,
// either launched here or attached through the options' debugger address.
type LocalBrowser struct {
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	attached bool
}

// NewLocalBrowser starts (or attaches to) Chrome and opens a tab. The browser
// lives until Close or until parent is cancelled.
func NewLocalBrowser(parent context.Context, opts *chromeopts.LaunchOptions, cfg config.LocalConfig, logger *zap.Logger) (*LocalBrowser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("local_browser")
	if opts == nil {
		opts = chromeopts.New()
	}

	var (
		base       context.Context
		cancelBase context.CancelFunc
	)
	if cfg.Timeout > 0 {
		base, cancelBase = context.WithTimeout(parent, cfg.Timeout)
	} else {
		base, cancelBase = context.WithCancel(parent)
	}

	var (
		allocCtx    context.Context
		cancelAlloc context.CancelFunc
		attached    bool
	)
	if addr := opts.DebuggerAddress(); addr != "" {
		attached = true
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(base, debuggerURL(addr))
		logger.Info("Attaching to running browser.", zap.String("debugger_address", addr))
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(base, opts.AllocatorOptions(cfg.Headless)...)
		logger.Info("Launching local browser.", zap.Bool("headless", cfg.Headless))
	}

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(logger.Sugar().Debugf),
		chromedp.WithErrorf(logger.Sugar().Errorf),
	)

	b := &LocalBrowser{
		ctx: browserCtx,
		cancel: func() {
			cancelBrowser()
			cancelAlloc()
			cancelBase()
		},
		logger:   logger,
		attached: attached,
	}

	// Running no actions starts the browser and its first tab.
	if err := chromedp.Run(browserCtx); err != nil {
		b.cancel()
		return nil, fmt.Errorf("failed to start local browser: %w", err)
	}
	return b, nil
}

// ExecuteCDP runs method on the browser's tab. ctx only bounds this call;
// cancelling it leaves the browser running.
func (b *LocalBrowser) ExecuteCDP(ctx context.Context, method string, params map[string]interface{}) (json.RawMessage, error) {
	var res map[string]interface{}
	err := chromedp.Run(b.ctx, chromedp.ActionFunc(func(c context.Context) error {
		callCtx, cancel := context.WithCancel(c)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		return cdp.Execute(callCtx, method, plainParams(params), &res)
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return json.Marshal(res)
}

// Close shuts the tab down. A launched browser is terminated with it; an
// attached one is only disconnected from.
func (b *LocalBrowser) Close() error {
	b.logger.Debug("Closing local browser.", zap.Bool("attached", b.attached))
	b.cancel()
	return nil
}

func debuggerURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "ws://" + addr
}

// plainParams replaces json.Number values with int64 or float64 so the
// chromedp encoder sees ordinary numbers.
func plainParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		return plainParams(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = plainValue(e)
		}
		return out
	default:
		return v
	}
}
