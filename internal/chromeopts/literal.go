// internal/chromeopts/literal.go
package chromeopts

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SyntaxError reports why an option string could not be read as literal
// keyword assignments. Pos is a byte offset into the input.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("options syntax error at offset %d: %s", e.Pos, e.Msg)
}

// keyword is one name=value assignment read from an option string.
type keyword struct {
	Name  string
	Value interface{}
	Pos   int
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokName
	tokString
	tokNumber
	tokOp
)

type token struct {
	kind tokenKind
	text string // operator text, identifier, or raw number text
	str  string // decoded value for tokString
	pos  int
}

// literalReader reads a Python-style keyword argument list in which every
// value must be a literal. Nothing is ever evaluated: names other than
// True, False and None are rejected, as are calls, attribute access and
// operators other than a unary sign on a number.
type literalReader struct {
	src   string
	off   int
	tok   token
	depth int
}

// maxNesting limits how deeply containers may nest inside one value.
const maxNesting = 100

// readKeywords parses src as `name=literal, name=literal, ...`.
func readKeywords(src string) ([]keyword, error) {
	r := &literalReader{src: src}
	if err := r.next(); err != nil {
		return nil, err
	}

	var out []keyword
	seen := make(map[string]bool)
	for r.tok.kind != tokEOF {
		if r.tok.kind == tokOp && r.tok.text == "**" {
			return nil, r.errorf("keyword unpacking is not allowed")
		}
		if r.tok.kind != tokName {
			return nil, r.errorf("expected keyword name, found %s", r.describe())
		}
		name, pos := r.tok.text, r.tok.pos
		if err := r.next(); err != nil {
			return nil, err
		}
		if !r.isOp("=") {
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("positional argument %q is not a keyword assignment", name)}
		}
		if err := r.next(); err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("keyword argument repeated: %s", name)}
		}
		seen[name] = true

		value, err := r.literal()
		if err != nil {
			return nil, err
		}
		out = append(out, keyword{Name: name, Value: value, Pos: pos})

		if r.tok.kind == tokEOF {
			break
		}
		if !r.isOp(",") {
			return nil, r.errorf("expected ',' between keywords, found %s", r.describe())
		}
		if err := r.next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *literalReader) literal() (interface{}, error) {
	switch r.tok.kind {
	case tokString:
		var sb strings.Builder
		for r.tok.kind == tokString {
			sb.WriteString(r.tok.str)
			if err := r.next(); err != nil {
				return nil, err
			}
		}
		return sb.String(), nil

	case tokNumber:
		v, err := r.number(r.tok)
		if err != nil {
			return nil, err
		}
		return v, r.next()

	case tokName:
		var v interface{}
		switch r.tok.text {
		case "True":
			v = true
		case "False":
			v = false
		case "None":
			v = nil
		default:
			return nil, r.errorf("name %q is not a literal", r.tok.text)
		}
		return v, r.next()

	case tokOp:
		switch r.tok.text {
		case "-", "+":
			return r.signed()
		}
		if r.depth >= maxNesting {
			return nil, r.errorf("literals nested deeper than %d levels", maxNesting)
		}
		r.depth++
		defer func() { r.depth-- }()
		switch r.tok.text {
		case "[":
			return r.sequence("]")
		case "(":
			return r.parenthesized()
		case "{":
			return r.braced()
		}
	}
	return nil, r.errorf("unexpected %s", r.describe())
}

func (r *literalReader) signed() (interface{}, error) {
	negative := false
	for r.tok.kind == tokOp && (r.tok.text == "-" || r.tok.text == "+") {
		if r.tok.text == "-" {
			negative = !negative
		}
		if err := r.next(); err != nil {
			return nil, err
		}
	}
	if r.tok.kind != tokNumber {
		return nil, r.errorf("unary sign must precede a number, found %s", r.describe())
	}
	v, err := r.number(r.tok)
	if err != nil {
		return nil, err
	}
	return applySign(v, negative), r.next()
}

func applySign(v interface{}, negative bool) interface{} {
	if !negative {
		return v
	}
	switch n := v.(type) {
	case int64:
		return -n
	case float64:
		return -n
	case json.Number:
		if strings.HasPrefix(string(n), "-") {
			return n[1:]
		}
		return "-" + n
	}
	return v
}

// sequence reads items up to closer, the opening bracket being current.
func (r *literalReader) sequence(closer string) ([]interface{}, error) {
	items := []interface{}{}
	if err := r.next(); err != nil {
		return nil, err
	}
	for !r.isOp(closer) {
		item, err := r.literal()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if r.isOp(",") {
			if err := r.next(); err != nil {
				return nil, err
			}
			continue
		}
		if !r.isOp(closer) {
			return nil, r.errorf("expected ',' or '%s', found %s", closer, r.describe())
		}
	}
	return items, r.next()
}

// parenthesized handles both grouping, `(x)`, and tuples, `(x,)` or `(x, y)`.
func (r *literalReader) parenthesized() (interface{}, error) {
	if err := r.next(); err != nil {
		return nil, err
	}
	if r.isOp(")") {
		return []interface{}{}, r.next()
	}
	first, err := r.literal()
	if err != nil {
		return nil, err
	}
	if r.isOp(")") {
		return first, r.next()
	}
	if !r.isOp(",") {
		return nil, r.errorf("expected ',' or ')', found %s", r.describe())
	}
	items := []interface{}{first}
	if err := r.next(); err != nil {
		return nil, err
	}
	for !r.isOp(")") {
		item, err := r.literal()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if r.isOp(",") {
			if err := r.next(); err != nil {
				return nil, err
			}
			continue
		}
		if !r.isOp(")") {
			return nil, r.errorf("expected ',' or ')', found %s", r.describe())
		}
	}
	return items, r.next()
}

// braced reads a dict, or a set (returned as a list) when the first element
// is not followed by a colon.
func (r *literalReader) braced() (interface{}, error) {
	if err := r.next(); err != nil {
		return nil, err
	}
	if r.isOp("}") {
		return map[string]interface{}{}, r.next()
	}

	firstPos := r.tok.pos
	first, err := r.literal()
	if err != nil {
		return nil, err
	}
	if !r.isOp(":") {
		items := []interface{}{first}
		for r.isOp(",") {
			if err := r.next(); err != nil {
				return nil, err
			}
			if r.isOp("}") {
				break
			}
			item, err := r.literal()
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if !r.isOp("}") {
			return nil, r.errorf("expected ',' or '}', found %s", r.describe())
		}
		return items, r.next()
	}

	out := make(map[string]interface{})
	key, err := mapKey(first, firstPos)
	if err != nil {
		return nil, err
	}
	for {
		if err := r.next(); err != nil { // consume ':'
			return nil, err
		}
		value, err := r.literal()
		if err != nil {
			return nil, err
		}
		out[key] = value

		if r.isOp("}") {
			break
		}
		if !r.isOp(",") {
			return nil, r.errorf("expected ',' or '}', found %s", r.describe())
		}
		if err := r.next(); err != nil {
			return nil, err
		}
		if r.isOp("}") {
			break
		}
		keyPos := r.tok.pos
		k, err := r.literal()
		if err != nil {
			return nil, err
		}
		if key, err = mapKey(k, keyPos); err != nil {
			return nil, err
		}
		if !r.isOp(":") {
			return nil, r.errorf("expected ':' after mapping key, found %s", r.describe())
		}
	}
	return out, r.next()
}

// mapKey renders a scalar mapping key the way it would appear as a JSON
// object key. Container keys are rejected.
func mapKey(k interface{}, pos int) (string, error) {
	switch v := k.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case json.Number:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "null", nil
	}
	return "", &SyntaxError{Pos: pos, Msg: "mapping keys must be scalar literals"}
}

func (r *literalReader) number(t token) (interface{}, error) {
	text := t.text
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return nil, &SyntaxError{Pos: t.pos, Msg: "complex literals are not supported"}
	}
	if err := checkUnderscores(text); err != nil {
		return nil, &SyntaxError{Pos: t.pos, Msg: err.Error()}
	}
	lower := strings.ToLower(text)
	if strings.HasPrefix(lower, "0x") || strings.HasPrefix(lower, "0o") || strings.HasPrefix(lower, "0b") {
		v, err := strconv.ParseInt(text, 0, 64)
		if errors.Is(err, strconv.ErrRange) {
			return bigInteger(text, t.pos)
		}
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid integer literal %q", text)}
		}
		return v, nil
	}

	clean := strings.ReplaceAll(text, "_", "")
	if !strings.ContainsAny(clean, ".eE") {
		if len(clean) > 1 && clean[0] == '0' && strings.Trim(clean, "0") != "" {
			return nil, &SyntaxError{Pos: t.pos, Msg: "leading zeros in decimal integer literals are not permitted"}
		}
		v, err := strconv.ParseInt(clean, 10, 64)
		if errors.Is(err, strconv.ErrRange) {
			return bigInteger(clean, t.pos)
		}
		if err != nil {
			return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid integer literal %q", text)}
		}
		return v, nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("invalid float literal %q", text)}
	}
	return v, nil
}

// bigInteger keeps an integer beyond int64 exactly, as its decimal text.
func bigInteger(text string, pos int) (interface{}, error) {
	n, ok := new(big.Int).SetString(text, 0)
	if !ok {
		return nil, &SyntaxError{Pos: pos, Msg: fmt.Sprintf("invalid integer literal %q", text)}
	}
	return json.Number(n.String()), nil
}

func checkUnderscores(text string) error {
	if strings.HasSuffix(text, "_") || strings.Contains(text, "__") ||
		strings.Contains(text, "_.") || strings.Contains(text, "._") {
		return fmt.Errorf("invalid underscore placement in %q", text)
	}
	return nil
}

func (r *literalReader) isOp(text string) bool {
	return r.tok.kind == tokOp && r.tok.text == text
}

func (r *literalReader) describe() string {
	switch r.tok.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return "string"
	case tokNumber:
		return fmt.Sprintf("number %s", r.tok.text)
	case tokName:
		return fmt.Sprintf("name %q", r.tok.text)
	}
	return fmt.Sprintf("%q", r.tok.text)
}

func (r *literalReader) errorf(format string, args ...interface{}) error {
	return &SyntaxError{Pos: r.tok.pos, Msg: fmt.Sprintf(format, args...)}
}

// -- Lexer --

func (r *literalReader) next() error {
	r.skipSpaceAndComments()
	start := r.off
	if r.off >= len(r.src) {
		r.tok = token{kind: tokEOF, pos: start}
		return nil
	}

	c := r.src[r.off]
	switch {
	case c == '"' || c == '\'':
		s, err := r.scanString("")
		if err != nil {
			return err
		}
		r.tok = token{kind: tokString, str: s, pos: start}
		return nil

	case isDigit(c) || (c == '.' && r.off+1 < len(r.src) && isDigit(r.src[r.off+1])):
		r.tok = token{kind: tokNumber, text: r.scanNumber(), pos: start}
		return nil

	case c == '*' && strings.HasPrefix(r.src[r.off:], "**"):
		r.off += 2
		r.tok = token{kind: tokOp, text: "**", pos: start}
		return nil

	case strings.IndexByte("=,[](){}:-+", c) >= 0:
		r.off++
		r.tok = token{kind: tokOp, text: string(c), pos: start}
		return nil
	}

	ch, _ := utf8.DecodeRuneInString(r.src[r.off:])
	if ch == '_' || unicode.IsLetter(ch) {
		ident := r.scanIdent()
		if r.off < len(r.src) && (r.src[r.off] == '"' || r.src[r.off] == '\'') && isStringPrefix(ident) {
			if strings.ContainsAny(ident, "fF") {
				return &SyntaxError{Pos: start, Msg: "f-strings are not literals"}
			}
			s, err := r.scanString(strings.ToLower(ident))
			if err != nil {
				return err
			}
			r.tok = token{kind: tokString, str: s, pos: start}
			return nil
		}
		r.tok = token{kind: tokName, text: ident, pos: start}
		return nil
	}

	return &SyntaxError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", ch)}
}

func (r *literalReader) skipSpaceAndComments() {
	for r.off < len(r.src) {
		c := r.src[r.off]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			r.off++
		case c == '\\' && r.off+1 < len(r.src) && r.src[r.off+1] == '\n':
			r.off += 2
		case c == '#':
			for r.off < len(r.src) && r.src[r.off] != '\n' {
				r.off++
			}
		default:
			return
		}
	}
}

func (r *literalReader) scanIdent() string {
	start := r.off
	for r.off < len(r.src) {
		ch, size := utf8.DecodeRuneInString(r.src[r.off:])
		if ch != '_' && !unicode.IsLetter(ch) && !unicode.IsDigit(ch) {
			break
		}
		r.off += size
	}
	return r.src[start:r.off]
}

func (r *literalReader) scanNumber() string {
	start := r.off
	for r.off < len(r.src) {
		c := r.src[r.off]
		if isDigit(c) || c == '.' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			// An exponent may carry a sign: 1e-3, 2E+4.
			if (c == 'e' || c == 'E') && r.off+1 < len(r.src) && (r.src[r.off+1] == '-' || r.src[r.off+1] == '+') &&
				!strings.HasPrefix(strings.ToLower(r.src[start:]), "0x") {
				r.off += 2
				continue
			}
			r.off++
			continue
		}
		break
	}
	return r.src[start:r.off]
}

func isStringPrefix(ident string) bool {
	switch strings.ToLower(ident) {
	case "r", "u", "b", "br", "rb", "f", "fr", "rf":
		return true
	}
	return false
}

// scanString reads a quoted string starting at the current offset, honoring
// triple quotes and, unless the prefix contains 'r', backslash escapes.
func (r *literalReader) scanString(prefix string) (string, error) {
	start := r.off
	quote := r.src[r.off]
	delim := string(quote)
	if strings.HasPrefix(r.src[r.off:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	r.off += len(delim)
	raw := strings.Contains(prefix, "r")
	triple := len(delim) == 3

	var sb strings.Builder
	for {
		if r.off >= len(r.src) {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string literal"}
		}
		if strings.HasPrefix(r.src[r.off:], delim) {
			r.off += len(delim)
			return sb.String(), nil
		}
		c := r.src[r.off]
		if c == '\n' && !triple {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string literal"}
		}
		if c != '\\' {
			ch, size := utf8.DecodeRuneInString(r.src[r.off:])
			sb.WriteRune(ch)
			r.off += size
			continue
		}
		if r.off+1 >= len(r.src) {
			return "", &SyntaxError{Pos: start, Msg: "unterminated string literal"}
		}
		if raw {
			// Raw strings keep the backslash but it still protects the next quote.
			sb.WriteString(r.src[r.off : r.off+2])
			r.off += 2
			continue
		}
		if err := r.scanEscape(&sb); err != nil {
			return "", err
		}
	}
}

func (r *literalReader) scanEscape(sb *strings.Builder) error {
	pos := r.off
	r.off++ // backslash
	c := r.src[r.off]
	r.off++
	switch c {
	case '\n':
	case '\\', '\'', '"':
		sb.WriteByte(c)
	case 'a':
		sb.WriteByte('\a')
	case 'b':
		sb.WriteByte('\b')
	case 'f':
		sb.WriteByte('\f')
	case 'n':
		sb.WriteByte('\n')
	case 'r':
		sb.WriteByte('\r')
	case 't':
		sb.WriteByte('\t')
	case 'v':
		sb.WriteByte('\v')
	case 'x', 'u', 'U':
		width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[c]
		if r.off+width > len(r.src) {
			return &SyntaxError{Pos: pos, Msg: fmt.Sprintf("truncated \\%c escape", c)}
		}
		code, err := strconv.ParseUint(r.src[r.off:r.off+width], 16, 32)
		if err != nil || code > unicode.MaxRune {
			return &SyntaxError{Pos: pos, Msg: fmt.Sprintf("invalid \\%c escape", c)}
		}
		sb.WriteRune(rune(code))
		r.off += width
	case '0', '1', '2', '3', '4', '5', '6', '7':
		end := r.off
		for end < len(r.src) && end < r.off+2 && r.src[end] >= '0' && r.src[end] <= '7' {
			end++
		}
		code, _ := strconv.ParseUint(r.src[r.off-1:end], 8, 32)
		sb.WriteRune(rune(code))
		r.off = end
	default:
		// Unknown escapes are kept verbatim.
		sb.WriteByte('\\')
		sb.WriteByte(c)
	}
	return nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
