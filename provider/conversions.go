package provider

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"

	"chatdesk/model"
)

// newToolCallID makes an id for providers that don't assign one
func newToolCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// ConvertToOllamaMessages converts history to Ollama API messages.
// Reasoning is not sent back; tool calls ride on assistant messages.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:      string(msg.Role),
			Content:   msg.Content,
			ToolCalls: ConvertFromProviderToolCalls(msg.ToolCalls),
		}
	}
	return result
}

// ConvertToProviderToolCalls converts Ollama tool calls, assigning ids
func ConvertToProviderToolCalls(calls []api.ToolCall) []model.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(calls))
	for i, call := range calls {
		result[i] = model.ToolCall{
			ID:        newToolCallID(),
			Name:      call.Function.Name,
			Arguments: map[string]any(call.Function.Arguments),
		}
	}
	return result
}

func ConvertFromProviderToolCalls(calls []model.ToolCall) []api.ToolCall {
	if len(calls) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(calls))
	for i, call := range calls {
		args := call.Arguments
		if args == nil {
			args = map[string]any{}
		}
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: args,
			},
		}
	}
	return result
}

// ParseToolArguments decodes a JSON argument object, yielding an empty map on bad input
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

// EncodeToolArguments is the inverse of ParseToolArguments
func EncodeToolArguments(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

type leakedCall struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Parameters map[string]any `json:"parameters"`
}

func (l leakedCall) toolCall() model.ToolCall {
	args := l.Arguments
	if args == nil {
		args = l.Parameters
	}
	if args == nil {
		args = map[string]any{}
	}
	return model.ToolCall{ID: newToolCallID(), Name: l.Name, Arguments: args}
}

var codeFence = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")

// ParseLeakedJSONToolCalls recovers tool calls that a model wrote into its
// text as JSON instead of using the tool-calling API. The whole reply must
// be the call (optionally fenced), so prose mentioning JSON is left alone.
func ParseLeakedJSONToolCalls(content string) []model.ToolCall {
	s := strings.TrimSpace(content)
	if m := codeFence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	if s == "" || (s[0] != '{' && s[0] != '[') {
		return nil
	}

	var calls []leakedCall
	if s[0] == '[' {
		if err := json.Unmarshal([]byte(s), &calls); err != nil {
			return nil
		}
	} else {
		var one leakedCall
		if err := json.Unmarshal([]byte(s), &one); err != nil {
			return nil
		}
		calls = []leakedCall{one}
	}

	var out []model.ToolCall
	for _, c := range calls {
		if c.Name == "" {
			return nil
		}
		out = append(out, c.toolCall())
	}
	return out
}

var (
	toolCallTag  = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)
	functionTag  = regexp.MustCompile(`(?s)<function=([\w.\-]+)>(.*?)</function>`)
	parameterTag = regexp.MustCompile(`(?s)<parameter=([\w.\-]+)>\s*(.*?)\s*</parameter>`)
)

// ParseLeakedXMLToolCalls recovers tool calls written as <tool_call>{json}</tool_call>
// or <function=name><parameter=key>value</parameter></function> markup.
func ParseLeakedXMLToolCalls(content string) []model.ToolCall {
	var out []model.ToolCall

	for _, m := range toolCallTag.FindAllStringSubmatch(content, -1) {
		var c leakedCall
		if err := json.Unmarshal([]byte(m[1]), &c); err != nil || c.Name == "" {
			continue
		}
		out = append(out, c.toolCall())
	}
	if len(out) > 0 {
		return out
	}

	for _, m := range functionTag.FindAllStringSubmatch(content, -1) {
		args := map[string]any{}
		for _, p := range parameterTag.FindAllStringSubmatch(m[2], -1) {
			var v any
			if err := json.Unmarshal([]byte(p[2]), &v); err == nil {
				args[p[1]] = v
			} else {
				args[p[1]] = p[2]
			}
		}
		out = append(out, model.ToolCall{ID: newToolCallID(), Name: m[1], Arguments: args})
	}
	return out
}

// stripProviderPrefix drops a vendor prefix: "meta-llama/llama-3.2" -> "llama-3.2"
func stripProviderPrefix(modelName string) string {
	if idx := strings.Index(modelName, "/"); idx != -1 {
		return modelName[idx+1:]
	}
	return modelName
}
