// internal/chromeopts/parser.go
package chromeopts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Rejection records a keyword that was read successfully but not applied.
type Rejection struct {
	Keyword string
	Reason  string
}

// keywordSetter applies one literal value to the options under construction.
type keywordSetter func(o *LaunchOptions, value interface{}) error

// setters is the closed set of keywords an option string may assign.
var setters = map[string]keywordSetter{
	"binary_location":  stringField(func(o *LaunchOptions, s string) { o.binaryLocation = s }),
	"debugger_address": stringField(func(o *LaunchOptions, s string) { o.debuggerAddress = s }),
	"browser_version":  stringField(func(o *LaunchOptions, s string) { o.browserVersion = s }),
	"platform_name":    stringField(func(o *LaunchOptions, s string) { o.platformName = s }),
	"unhandled_prompt_behavior": stringField(func(o *LaunchOptions, s string) {
		o.unhandledPromptBehavior = s
	}),
	"accept_insecure_certs": boolField(func(o *LaunchOptions, b *bool) { o.acceptInsecureCerts = b }),
	"strict_file_interactability": boolField(func(o *LaunchOptions, b *bool) {
		o.strictFileInteractability = b
	}),
	"set_window_rect":  boolField(func(o *LaunchOptions, b *bool) { o.setWindowRect = b }),
	"enable_downloads": boolField(func(o *LaunchOptions, b *bool) { o.enableDownloads = b }),

	"page_load_strategy": func(o *LaunchOptions, v interface{}) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %s", typeName(v))
		}
		switch s {
		case PageLoadNormal, PageLoadEager, PageLoadNone:
			o.pageLoadStrategy = s
			return nil
		}
		return fmt.Errorf("strategy must be one of normal, eager, none; got %q", s)
	},

	"arguments": func(o *LaunchOptions, v interface{}) error {
		args, err := stringList(v)
		if err != nil {
			return err
		}
		o.arguments = append(o.arguments, args...)
		return nil
	},

	"extensions": func(o *LaunchOptions, v interface{}) error {
		paths, err := stringList(v)
		if err != nil {
			return err
		}
		o.extensions = append(o.extensions, paths...)
		return nil
	},

	"experimental_options": func(o *LaunchOptions, v interface{}) error {
		m, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected a mapping, got %s", typeName(v))
		}
		for k, val := range m {
			o.experimental[k] = val
		}
		return nil
	},

	"timeouts": func(o *LaunchOptions, v interface{}) error {
		m, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected a mapping, got %s", typeName(v))
		}
		timeouts := make(map[string]int64, len(m))
		for k, val := range m {
			switch k {
			case "implicit", "pageLoad", "script":
			default:
				return fmt.Errorf("unknown timeout %q", k)
			}
			n, ok := val.(int64)
			if !ok || n < 0 {
				return fmt.Errorf("timeout %q must be a non-negative integer", k)
			}
			timeouts[k] = n
		}
		o.timeouts = timeouts
		return nil
	},
}

// Keywords lists the keyword names an option string may assign.
func Keywords() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Parser turns a raw option string into LaunchOptions.
type Parser struct {
	logger *zap.Logger
}

// NewParser returns a parser that reports rejected keywords and fallbacks to logger.
func NewParser(logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{logger: logger.Named("options")}
}

// Parse never fails. The raw string is first read as literal keyword
// assignments; when that is not possible, every whitespace separated token
// becomes a raw launch argument instead.
func (p *Parser) Parse(raw string) *LaunchOptions {
	if strings.TrimSpace(raw) == "" {
		return New()
	}

	opts, rejected, err := ParseStrict(raw)
	if err != nil {
		p.logger.Debug("Options are not literal keyword assignments; treating them as raw arguments.", zap.Error(err))
		return New(WithArguments(strings.Fields(raw)...))
	}
	for _, r := range rejected {
		p.logger.Warn("Ignoring launch option.", zap.String("keyword", r.Keyword), zap.String("reason", r.Reason))
	}
	return opts
}

// ParseStrict performs only the structured reading of raw. Unknown keywords
// and values of the wrong shape are skipped and reported as rejections; an
// error means raw is not a list of literal keyword assignments at all.
func ParseStrict(raw string) (*LaunchOptions, []Rejection, error) {
	keywords, err := readKeywords(raw)
	if err != nil {
		return nil, nil, err
	}

	opts := New()
	var rejected []Rejection
	for _, kw := range keywords {
		set, ok := setters[kw.Name]
		if !ok {
			rejected = append(rejected, Rejection{Keyword: kw.Name, Reason: "unknown option"})
			continue
		}
		if err := set(opts, kw.Value); err != nil {
			rejected = append(rejected, Rejection{Keyword: kw.Name, Reason: err.Error()})
		}
	}
	return opts, rejected, nil
}

func stringField(assign func(*LaunchOptions, string)) keywordSetter {
	return func(o *LaunchOptions, v interface{}) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected a string, got %s", typeName(v))
		}
		assign(o, s)
		return nil
	}
}

func boolField(assign func(*LaunchOptions, *bool)) keywordSetter {
	return func(o *LaunchOptions, v interface{}) error {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected a boolean, got %s", typeName(v))
		}
		assign(o, &b)
		return nil
	}
}

// stringList accepts a list/tuple/set of strings. A lone string is treated as
// a one-element list rather than a sequence of characters.
func stringList(v interface{}) ([]string, error) {
	if s, ok := v.(string); ok {
		return []string{s}, nil
	}
	items, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list of strings, got %s", typeName(v))
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a string, got %s", i, typeName(item))
		}
		out = append(out, s)
	}
	return out, nil
}

func typeName(v interface{}) string {
	switch v.(type) {
	case nil:
		return "None"
	case string:
		return "string"
	case int64, json.Number:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "boolean"
	case []interface{}:
		return "sequence"
	case map[string]interface{}:
		return "mapping"
	}
	return fmt.Sprintf("%T", v)
}
