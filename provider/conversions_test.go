package provider

import (
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/model"
	"chatdesk/provider/testutil"
)

func TestConvertToOllamaMessages(t *testing.T) {
	msgs := ConvertToOllamaMessages(testutil.ToolTurn())
	require.Len(t, msgs, 3)

	assert.Equal(t, "user", msgs[0].Role)
	assert.Nil(t, msgs[0].ToolCalls)

	assert.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	assert.Equal(t, "get_weather", msgs[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "Paris", msgs[1].ToolCalls[0].Function.Arguments["location"])

	assert.Equal(t, "tool", msgs[2].Role)
	assert.Equal(t, "18C and sunny", msgs[2].Content)
}

func TestConvertToProviderToolCallsAssignsIDs(t *testing.T) {
	assert.Nil(t, ConvertToProviderToolCalls(nil))

	calls := ConvertToProviderToolCalls([]api.ToolCall{
		{Function: api.ToolCallFunction{Name: "a", Arguments: map[string]any{"x": 1.0}}},
		{Function: api.ToolCallFunction{Name: "b"}},
	})
	require.Len(t, calls, 2)
	assert.NotEmpty(t, calls[0].ID)
	assert.NotEqual(t, calls[0].ID, calls[1].ID)
	assert.Equal(t, 1.0, calls[0].Arguments["x"])
}

func TestConvertFromProviderToolCallsNilArguments(t *testing.T) {
	calls := ConvertFromProviderToolCalls([]model.ToolCall{{Name: "ping"}})
	require.Len(t, calls, 1)
	assert.NotNil(t, calls[0].Function.Arguments)
}

func TestParseToolArguments(t *testing.T) {
	tests := []struct {
		in   string
		want map[string]any
	}{
		{`{"path":"a.txt"}`, map[string]any{"path": "a.txt"}},
		{``, map[string]any{}},
		{`not json`, map[string]any{}},
		{`null`, map[string]any{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseToolArguments(tt.in), tt.in)
	}
	assert.Equal(t, "{}", EncodeToolArguments(nil))
	assert.Equal(t, `{"a":1}`, EncodeToolArguments(map[string]any{"a": 1}))
}

func TestParseLeakedJSONToolCalls(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
		arg     any
	}{
		{"object with arguments", `{"name":"fs__read","arguments":{"path":"x"}}`, []string{"fs__read"}, "x"},
		{"object with parameters", `{"name":"fs__read","parameters":{"path":"y"}}`, []string{"fs__read"}, "y"},
		{"fenced", "```json\n{\"name\":\"fs__read\",\"arguments\":{\"path\":\"z\"}}\n```", []string{"fs__read"}, "z"},
		{"array", `[{"name":"a","arguments":{}},{"name":"b"}]`, []string{"a", "b"}, nil},
		{"prose", `Here is some JSON: {"name":"x"}`, nil, nil},
		{"missing name", `{"arguments":{}}`, nil, nil},
		{"broken", `{"name":`, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := ParseLeakedJSONToolCalls(tt.content)
			require.Len(t, calls, len(tt.want))
			for i, name := range tt.want {
				assert.Equal(t, name, calls[i].Name)
				assert.NotEmpty(t, calls[i].ID)
				assert.NotNil(t, calls[i].Arguments)
			}
			if tt.arg != nil {
				assert.Equal(t, tt.arg, calls[0].Arguments["path"])
			}
		})
	}
}

func TestParseLeakedXMLToolCalls(t *testing.T) {
	calls := ParseLeakedXMLToolCalls(`sure <tool_call>{"name":"fs__read","arguments":{"path":"a"}}</tool_call>`)
	require.Len(t, calls, 1)
	assert.Equal(t, "fs__read", calls[0].Name)
	assert.Equal(t, "a", calls[0].Arguments["path"])

	calls = ParseLeakedXMLToolCalls("<function=fs__read>\n<parameter=path>\nnotes.txt\n</parameter>\n<parameter=limit>10</parameter>\n</function>")
	require.Len(t, calls, 1)
	assert.Equal(t, "notes.txt", calls[0].Arguments["path"])
	assert.Equal(t, 10.0, calls[0].Arguments["limit"])

	assert.Empty(t, ParseLeakedXMLToolCalls("no markup here"))
}

func TestStripProviderPrefix(t *testing.T) {
	assert.Equal(t, "llama-3.2-90b", stripProviderPrefix("meta-llama/llama-3.2-90b"))
	assert.Equal(t, "gpt-4o", stripProviderPrefix("gpt-4o"))
}

func TestWithToolInstructions(t *testing.T) {
	msgs := testutil.TestMessages()
	assert.Equal(t, msgs, withToolInstructions(msgs, nil))

	out := withToolInstructions(msgs, testutil.TestMCPTools())
	require.Len(t, out, len(msgs)+1)
	assert.Equal(t, model.RoleSystem, out[0].Role)
	assert.Contains(t, out[0].Content, "get_weather, calculate")

	assert.True(t, shouldSkipToolInstructions("Qwen3-Coder"))
	assert.False(t, shouldSkipToolInstructions("llama3.1"))
}
