package cdp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantMethod string
		wantParams map[string]interface{}
		wantErr    error
	}{
		{
			name:       "method only",
			raw:        `{"cmd": "Page.enable"}`,
			wantMethod: "Page.enable",
			wantParams: map[string]interface{}{},
		},
		{
			name:       "with args",
			raw:        `{"cmd": "Page.navigate", "args": {"url": "https://example.com"}}`,
			wantMethod: "Page.navigate",
			wantParams: map[string]interface{}{"url": "https://example.com"},
		},
		{
			name:       "null args",
			raw:        `{"cmd": "Page.reload", "args": null}`,
			wantMethod: "Page.reload",
			wantParams: map[string]interface{}{},
		},
		{
			name:       "surrounding whitespace",
			raw:        "\n  {\"cmd\": \"Runtime.enable\"}  \n",
			wantMethod: "Runtime.enable",
			wantParams: map[string]interface{}{},
		},
		{name: "not json", raw: "not json", wantErr: ErrInvalidCommandFormat},
		{name: "empty", raw: "", wantErr: ErrInvalidCommandFormat},
		{name: "array", raw: `["Page.enable"]`, wantErr: ErrInvalidCommandFormat},
		{name: "trailing data", raw: `{"cmd": "Page.enable"} {}`, wantErr: ErrInvalidCommandFormat},
		{name: "args not an object", raw: `{"cmd": "Page.enable", "args": [1]}`, wantErr: ErrInvalidCommandFormat},
		{name: "missing cmd", raw: `{"args": {}}`, wantErr: ErrMissingCommand},
		{name: "empty cmd", raw: `{"cmd": ""}`, wantErr: ErrMissingCommand},
		{name: "numeric cmd", raw: `{"cmd": 7}`, wantErr: ErrMissingCommand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := ParseCommand(tt.raw)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMethod, cmd.Method)
			assert.Equal(t, tt.wantParams, cmd.Params)
		})
	}
}

func TestParseCommand_KeepsNumbersExact(t *testing.T) {
	cmd, err := ParseCommand(`{"cmd": "Emulation.setGeolocationOverride", "args": {"latitude": 51.5072178, "accuracy": 9007199254740993}}`)
	require.NoError(t, err)

	assert.Equal(t, json.Number("51.5072178"), cmd.Params["latitude"])
	assert.Equal(t, json.Number("9007199254740993"), cmd.Params["accuracy"])
}

func TestParseCommand_ErrorMessages(t *testing.T) {
	_, err := ParseCommand(`{"args": {}}`)
	require.Error(t, err)
	assert.Equal(t, "'cmd' key is missing or not a string", err.Error())

	_, err = ParseCommand("not json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid json format: ")
}

func TestCommand_String(t *testing.T) {
	cmd := Command{Method: "Page.navigate", Params: map[string]interface{}{"url": "https://example.com/?a=1&b=<2>"}}
	assert.Equal(t, `Page.navigate {"url":"https://example.com/?a=1&b=<2>"}`, cmd.String())
}
