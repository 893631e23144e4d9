package chromeopts

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadKeywords_Literals(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]interface{}
	}{
		{
			name: "empty input",
			src:  "   ",
			want: map[string]interface{}{},
		},
		{
			name: "strings with both quote styles",
			src:  `a="double", b='single'`,
			want: map[string]interface{}{"a": "double", "b": "single"},
		},
		{
			name: "adjacent strings concatenate",
			src:  `a="foo" 'bar'`,
			want: map[string]interface{}{"a": "foobar"},
		},
		{
			name: "escapes and raw strings",
			src:  `a="tab\there\x21\u00e9", b=r"C:\new"`,
			want: map[string]interface{}{"a": "tab\there!\u00e9", "b": `C:\new`},
		},
		{
			name: "triple quoted string spans lines",
			src:  "a='''line one\nline two'''",
			want: map[string]interface{}{"a": "line one\nline two"},
		},
		{
			name: "numbers",
			src:  "a=42, b=-7, c=0x1F, d=0o17, e=0b101, f=1_000, g=2.5, h=1e3, i=-.5, j=0",
			want: map[string]interface{}{
				"a": int64(42), "b": int64(-7), "c": int64(31), "d": int64(15),
				"e": int64(5), "f": int64(1000), "g": 2.5, "h": 1000.0, "i": -0.5, "j": int64(0),
			},
		},
		{
			name: "integers beyond int64",
			src:  "a=99999999999999999999, b=-0x10000000000000000, c=--+3, d={18446744073709551616: 1}",
			want: map[string]interface{}{
				"a": json.Number("99999999999999999999"),
				"b": json.Number("-18446744073709551616"),
				"c": int64(3),
				"d": map[string]interface{}{"18446744073709551616": int64(1)},
			},
		},
		{
			name: "nesting at the limit",
			src:  "a=" + strings.Repeat("[", maxNesting) + strings.Repeat("]", maxNesting),
			want: map[string]interface{}{"a": nested(maxNesting)},
		},
		{
			name: "constants",
			src:  "a=True, b=False, c=None",
			want: map[string]interface{}{"a": true, "b": false, "c": nil},
		},
		{
			name: "containers",
			src:  `a=[1, "x"], b=("y",), c=(), d={"k": [True]}, e={1, 2}, f=("grouped")`,
			want: map[string]interface{}{
				"a": []interface{}{int64(1), "x"},
				"b": []interface{}{"y"},
				"c": []interface{}{},
				"d": map[string]interface{}{"k": []interface{}{true}},
				"e": []interface{}{int64(1), int64(2)},
				"f": "grouped",
			},
		},
		{
			name: "scalar mapping keys",
			src:  `a={1: "one", True: "yes", None: 0}`,
			want: map[string]interface{}{"a": map[string]interface{}{"1": "one", "true": "yes", "null": int64(0)}},
		},
		{
			name: "trailing commas, comments and line continuations",
			src:  "a=[1, 2,], # first\n b={'k': 1,}, \\\n c=3,",
			want: map[string]interface{}{
				"a": []interface{}{int64(1), int64(2)},
				"b": map[string]interface{}{"k": int64(1)},
				"c": int64(3),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kws, err := readKeywords(tt.src)
			require.NoError(t, err)

			got := make(map[string]interface{}, len(kws))
			for _, kw := range kws {
				got[kw.Name] = kw.Value
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("readKeywords() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadKeywords_PreservesOrder(t *testing.T) {
	kws, err := readKeywords("z=1, a=2, m=3")
	require.NoError(t, err)

	names := make([]string, 0, len(kws))
	for _, kw := range kws {
		names = append(names, kw.Name)
	}
	assert.Equal(t, []string{"z", "a", "m"}, names)
}

func TestReadKeywords_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		message string
	}{
		{"positional argument", "--headless", "expected keyword name"},
		{"bare name", "headless", "positional argument"},
		{"keyword unpacking", "**opts", "keyword unpacking"},
		{"function call", "a=open('/etc/passwd')", `name "open" is not a literal`},
		{"arbitrary name", "a=os", `name "os" is not a literal`},
		{"attribute access", "a=True.real", "unexpected character"},
		{"binary operator", "a=1+2", "expected ','"},
		{"sign on a string", "a=-'x'", "unary sign must precede a number"},
		{"repeated keyword", "a=1, a=2", "keyword argument repeated: a"},
		{"leading zeros", "a=007", "leading zeros"},
		{"bad underscore", "a=1__0", "invalid underscore"},
		{"complex number", "a=3j", "complex literals"},
		{"f-string", `a=f"{x}"`, "f-strings"},
		{"unterminated string", `a="open`, "unterminated string"},
		{"newline in short string", "a='one\ntwo'", "unterminated string"},
		{"container mapping key", "a={[1]: 2}", "mapping keys must be scalar"},
		{"missing comma", "a=1 b=2", "expected ','"},
		{"unclosed list", "a=[1, 2", "expected ',' or ']'"},
		{"semicolon", "a=1; import os", "unexpected character"},
		{"lambda", "a=lambda: 1", `name "lambda" is not a literal`},
		{"nesting too deep", "a=" + strings.Repeat("[", maxNesting+1), "nested deeper than 100 levels"},
		{"mixed nesting too deep", "a=" + strings.Repeat(`({"k": `, maxNesting), "nested deeper than 100 levels"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readKeywords(tt.src)
			require.Error(t, err)

			var synErr *SyntaxError
			require.True(t, errors.As(err, &synErr), "expected *SyntaxError, got %T", err)
			assert.Contains(t, synErr.Msg, tt.message)
		})
	}
}

func TestSyntaxError_Position(t *testing.T) {
	_, err := readKeywords("a=1, b=oops")
	var synErr *SyntaxError
	require.True(t, errors.As(err, &synErr))
	assert.Equal(t, 7, synErr.Pos)
	assert.Equal(t, `options syntax error at offset 7: name "oops" is not a literal`, synErr.Error())
}

// nested builds depth empty lists, each inside the previous one.
func nested(depth int) interface{} {
	v := []interface{}{}
	for i := 1; i < depth; i++ {
		v = []interface{}{v}
	}
	return v
}
