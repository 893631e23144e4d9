// internal/chromeopts/options.go
package chromeopts

import (
	"encoding/base64"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chromedp/chromedp"
)

// CapabilityKey is the vendor capability that carries Chrome specific options.
const CapabilityKey = "goog:chromeOptions"

// Page load strategies accepted by WebDriver.
const (
	PageLoadNormal = "normal"
	PageLoadEager  = "eager"
	PageLoadNone   = "none"
)

// LaunchOptions describes how the remote (or local) Chrome should be started.
// Values are only populated while a LaunchOptions is being constructed; every
// accessor returns a copy so a built value can be shared freely.
type LaunchOptions struct {
	binaryLocation            string
	debuggerAddress           string
	arguments                 []string
	extensions                []string
	experimental              map[string]interface{}
	pageLoadStrategy          string
	acceptInsecureCerts       *bool
	browserVersion            string
	platformName              string
	strictFileInteractability *bool
	unhandledPromptBehavior   string
	setWindowRect             *bool
	enableDownloads           *bool
	timeouts                  map[string]int64
}

// Option configures LaunchOptions at construction time.
type Option func(*LaunchOptions)

func WithBinaryLocation(path string) Option {
	return func(o *LaunchOptions) { o.binaryLocation = path }
}

func WithDebuggerAddress(addr string) Option {
	return func(o *LaunchOptions) { o.debuggerAddress = addr }
}

func WithArguments(args ...string) Option {
	return func(o *LaunchOptions) { o.arguments = append(o.arguments, args...) }
}

func WithExtensions(paths ...string) Option {
	return func(o *LaunchOptions) { o.extensions = append(o.extensions, paths...) }
}

func WithExperimentalOption(name string, value interface{}) Option {
	return func(o *LaunchOptions) { o.experimental[name] = value }
}

func WithPageLoadStrategy(strategy string) Option {
	return func(o *LaunchOptions) { o.pageLoadStrategy = strategy }
}

// New builds LaunchOptions from the given options.
func New(opts ...Option) *LaunchOptions {
	o := &LaunchOptions{experimental: make(map[string]interface{})}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *LaunchOptions) BinaryLocation() string  { return o.binaryLocation }
func (o *LaunchOptions) DebuggerAddress() string { return o.debuggerAddress }

// PageLoadStrategy defaults to "normal" when unset.
func (o *LaunchOptions) PageLoadStrategy() string {
	if o.pageLoadStrategy == "" {
		return PageLoadNormal
	}
	return o.pageLoadStrategy
}

func (o *LaunchOptions) Arguments() []string {
	return append([]string(nil), o.arguments...)
}

func (o *LaunchOptions) Extensions() []string {
	return append([]string(nil), o.extensions...)
}

func (o *LaunchOptions) ExperimentalOptions() map[string]interface{} {
	out := make(map[string]interface{}, len(o.experimental))
	for k, v := range o.experimental {
		out[k] = v
	}
	return out
}

// Capabilities renders the W3C capability set for a new-session request.
// Extension files are read and base64 encoded here, so a missing file
// surfaces as an error at session creation.
func (o *LaunchOptions) Capabilities() (map[string]interface{}, error) {
	chrome := o.ExperimentalOptions()

	encoded := make([]string, 0, len(o.extensions))
	for _, path := range o.extensions {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read extension %s: %w", path, err)
		}
		encoded = append(encoded, base64.StdEncoding.EncodeToString(data))
	}
	// Lists given through experimental options are kept ahead of the
	// structured ones; scalar keys are replaced only when the field is set.
	chrome["extensions"] = mergedList(chrome["extensions"], encoded)
	chrome["args"] = mergedList(chrome["args"], o.Arguments())
	if o.binaryLocation != "" {
		chrome["binary"] = o.binaryLocation
	}
	if o.debuggerAddress != "" {
		chrome["debuggerAddress"] = o.debuggerAddress
	}

	caps := map[string]interface{}{
		"browserName":      "chrome",
		"pageLoadStrategy": o.PageLoadStrategy(),
		CapabilityKey:      chrome,
	}
	if o.acceptInsecureCerts != nil {
		caps["acceptInsecureCerts"] = *o.acceptInsecureCerts
	}
	if o.browserVersion != "" {
		caps["browserVersion"] = o.browserVersion
	}
	if o.platformName != "" {
		caps["platformName"] = o.platformName
	}
	if o.strictFileInteractability != nil {
		caps["strictFileInteractability"] = *o.strictFileInteractability
	}
	if o.unhandledPromptBehavior != "" {
		caps["unhandledPromptBehavior"] = o.unhandledPromptBehavior
	}
	if o.setWindowRect != nil {
		caps["setWindowRect"] = *o.setWindowRect
	}
	if o.enableDownloads != nil {
		caps["se:downloadsEnabled"] = *o.enableDownloads
	}
	if len(o.timeouts) > 0 {
		timeouts := make(map[string]interface{}, len(o.timeouts))
		for k, v := range o.timeouts {
			timeouts[k] = v
		}
		caps["timeouts"] = timeouts
	}
	return caps, nil
}

// mergedList returns the string items of existing followed by extra.
// existing may be a single string or a list, as read from an option string
// or set programmatically.
func mergedList(existing interface{}, extra []string) []string {
	var head []string
	switch v := existing.(type) {
	case string:
		head = []string{v}
	case []string:
		head = v
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				head = append(head, s)
			}
		}
	}
	if len(head) == 0 {
		return extra
	}
	return append(append([]string{}, head...), extra...)
}

// AllocatorOptions translates the launch options into chromedp exec allocator
// options for running Chrome locally. Arguments use the "--name[=value]" form.
// Extensions are passed through --load-extension, so they must be unpacked
// directories rather than .crx archives.
func (o *LaunchOptions) AllocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if headless {
		opts = append(opts, chromedp.Headless)
	}
	if o.binaryLocation != "" {
		opts = append(opts, chromedp.ExecPath(o.binaryLocation))
	}
	for _, arg := range o.arguments {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	if len(o.extensions) > 0 {
		opts = append(opts, chromedp.Flag("load-extension", strings.Join(o.extensions, ",")))
	}
	return opts
}

// String gives a compact, stable description for logs.
func (o *LaunchOptions) String() string {
	keys := make([]string, 0, len(o.experimental))
	for k := range o.experimental {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("binary=%q args=%v extensions=%d experimental=%v strategy=%s",
		o.binaryLocation, o.arguments, len(o.extensions), keys, o.PageLoadStrategy())
}
