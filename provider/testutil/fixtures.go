package testutil

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"chatdesk/model"
)

var fixtureTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// TestMessages returns a short conversation
func TestMessages() []model.Message {
	return []model.Message{
		{ID: "m1", Role: model.RoleUser, Content: "Hello, how are you?", Timestamp: fixtureTime},
		{ID: "m2", Role: model.RoleAssistant, Content: "I'm doing well, thank you!", Timestamp: fixtureTime},
		{ID: "m3", Role: model.RoleUser, Content: "Can you help me with a task?", Timestamp: fixtureTime},
	}
}

// ToolTurn is an assistant tool call followed by its result
func ToolTurn() []model.Message {
	return []model.Message{
		{Role: model.RoleUser, Content: "Weather in Paris?"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: map[string]any{"location": "Paris"}},
		}},
		{Role: model.RoleTool, Content: "18C and sunny", ToolCallID: "call_1"},
	}
}

// TestMCPTools returns two sample tool definitions
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a location",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"location": map[string]any{
						"type":        "string",
						"description": "The city and state, e.g. San Francisco, CA",
					},
				},
				Required: []string{"location"},
			},
		},
		{
			Name:        "calculate",
			Description: "Perform a mathematical calculation",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"expression": map[string]any{
						"type":        "string",
						"description": "The mathematical expression to evaluate",
					},
				},
				Required: []string{"expression"},
			},
		},
	}
}

// SystemMessage returns a system message
func SystemMessage(content string) model.Message {
	return model.Message{Role: model.RoleSystem, Content: content, Timestamp: fixtureTime}
}
