package mcp

import (
	"testing"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFileTool() mcptypes.Tool {
	return mcptypes.Tool{
		Name:        "fs__read_file",
		Description: "Read a file",
		InputSchema: mcptypes.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"path":     map[string]any{"type": "string", "description": "File path"},
				"encoding": map[string]any{"type": "string", "enum": []any{"utf-8", "latin1"}},
			},
			Required: []string{"path"},
		},
	}
}

func TestOllamaTools(t *testing.T) {
	assert.Nil(t, OllamaTools(nil))

	tools := OllamaTools([]mcptypes.Tool{readFileTool()})
	require.Len(t, tools, 1)

	fn := tools[0].Function
	assert.Equal(t, "function", tools[0].Type)
	assert.Equal(t, "fs__read_file", fn.Name)
	assert.Equal(t, "object", fn.Parameters.Type)
	assert.Equal(t, []string{"path"}, fn.Parameters.Required)
	assert.Equal(t, "File path", fn.Parameters.Properties["path"].Description)
	assert.Len(t, fn.Parameters.Properties["encoding"].Enum, 2)
}

func TestOllamaParametersDefaultsToObject(t *testing.T) {
	params := ollamaParameters(mcptypes.ToolInputSchema{})
	assert.Equal(t, "object", params.Type)
	assert.Empty(t, params.Properties)
}

func TestOllamaProperty(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		validate func(t *testing.T, p api.ToolProperty)
	}{
		{
			name:  "string type",
			input: map[string]any{"type": "string", "description": "A string"},
			validate: func(t *testing.T, p api.ToolProperty) {
				assert.Equal(t, api.PropertyType{"string"}, p.Type)
				assert.Equal(t, "A string", p.Description)
			},
		},
		{
			name:  "type list",
			input: map[string]any{"type": []any{"string", "number", 3}},
			validate: func(t *testing.T, p api.ToolProperty) {
				assert.Equal(t, api.PropertyType{"string", "number"}, p.Type)
			},
		},
		{
			name:  "array items",
			input: map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			validate: func(t *testing.T, p api.ToolProperty) {
				assert.NotNil(t, p.Items)
			},
		},
		{
			name: "anyOf",
			input: map[string]any{"anyOf": []any{
				map[string]any{"type": "string"},
				map[string]any{"type": "number"},
			}},
			validate: func(t *testing.T, p api.ToolProperty) {
				require.Len(t, p.AnyOf, 2)
				assert.Equal(t, api.PropertyType{"number"}, p.AnyOf[1].Type)
			},
		},
		{
			name: "struct value round-trips through JSON",
			input: struct {
				Type string `json:"type"`
			}{Type: "boolean"},
			validate: func(t *testing.T, p api.ToolProperty) {
				assert.Equal(t, api.PropertyType{"boolean"}, p.Type)
			},
		},
		{
			name:  "unusable value",
			input: 42,
			validate: func(t *testing.T, p api.ToolProperty) {
				assert.Empty(t, p.Type)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, ollamaProperty(tt.input))
		})
	}
}

func TestOpenAITools(t *testing.T) {
	assert.Nil(t, OpenAITools(nil))

	tools := OpenAITools([]mcptypes.Tool{readFileTool(), {Name: "ping"}})
	require.Len(t, tools, 2)
	require.NotNil(t, tools[0].OfFunction)

	fn := tools[0].OfFunction.Function
	assert.Equal(t, "fs__read_file", fn.Name)
	assert.Equal(t, "object", fn.Parameters["type"])
	assert.Equal(t, []string{"path"}, fn.Parameters["required"])

	ping := tools[1].OfFunction.Function
	assert.Equal(t, map[string]any{}, ping.Parameters["properties"])
	_, hasRequired := ping.Parameters["required"]
	assert.False(t, hasRequired)
}

func TestAnthropicTools(t *testing.T) {
	assert.Nil(t, AnthropicTools(nil))

	withDefs := readFileTool()
	withDefs.InputSchema.Defs = map[string]any{"mode": map[string]any{"type": "string"}}

	tools := AnthropicTools([]mcptypes.Tool{withDefs})
	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)

	tool := tools[0].OfTool
	assert.Equal(t, "fs__read_file", tool.Name)
	assert.Equal(t, []string{"path"}, tool.InputSchema.Required)
	assert.Contains(t, tool.InputSchema.ExtraFields, "$defs")
	assert.Equal(t, "Read a file", tool.Description.Value)
}
