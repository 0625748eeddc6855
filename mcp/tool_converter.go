package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// OllamaTools converts MCP tool definitions to Ollama function tools
func OllamaTools(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}

	out := make([]api.Tool, len(tools))
	for i, tool := range tools {
		out[i] = api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  ollamaParameters(tool.InputSchema),
			},
		}
	}
	return out
}

func ollamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	typ := schema.Type
	if typ == "" {
		typ = "object"
	}
	params := api.ToolFunctionParameters{
		Type:       typ,
		Required:   schema.Required,
		Properties: make(map[string]api.ToolProperty, len(schema.Properties)),
	}
	if schema.Defs != nil {
		params.Defs = schema.Defs
	}
	for name, prop := range schema.Properties {
		params.Properties[name] = ollamaProperty(prop)
	}
	return params
}

// ollamaProperty maps one JSON-schema property. Values that are not already
// a map are round-tripped through JSON first.
func ollamaProperty(v any) api.ToolProperty {
	var prop api.ToolProperty

	m, ok := v.(map[string]any)
	if !ok {
		raw, err := json.Marshal(v)
		if err != nil || json.Unmarshal(raw, &m) != nil {
			return prop
		}
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		for _, s := range t {
			if s, ok := s.(string); ok {
				prop.Type = append(prop.Type, s)
			}
		}
	}

	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		for _, alt := range anyOf {
			prop.AnyOf = append(prop.AnyOf, ollamaProperty(alt))
		}
	}
	return prop
}

// OpenAITools converts MCP tool definitions to chat-completions function tools.
// OpenRouter accepts the same format.
func OpenAITools(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		typ := tool.InputSchema.Type
		if typ == "" {
			typ = "object"
		}
		props := tool.InputSchema.Properties
		if props == nil {
			props = map[string]any{}
		}
		params := openai.FunctionParameters{
			"type":       typ,
			"properties": props,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  params,
		})
	}
	return out
}

// AnthropicTools converts MCP tool definitions to Messages API tools
func AnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		schema := anthropic.ToolInputSchemaParam{Properties: tool.InputSchema.Properties}
		if len(tool.InputSchema.Required) > 0 {
			schema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			schema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		out[i] = anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return out
}
