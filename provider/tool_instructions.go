package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"chatdesk/model"
)

// buildToolInstructions is the short system preamble sent alongside tool
// definitions. Capable models mostly need to be told to act, not to chat.
func buildToolInstructions(tools []mcptypes.Tool) string {
	names := make([]string, len(tools))
	for i, tool := range tools {
		names[i] = tool.Name
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(names, ", "),
		"",
		"When a request needs a tool:",
		"1. Pick the tool",
		"2. If every required parameter is known, call it right away without commentary",
		"3. Otherwise ask only for the missing parameter",
		"",
		"Do not list the tools or describe what you are about to do.",
		"After a tool result arrives, answer the user using it.",
	}, "\n")
}

// withToolInstructions prepends the tool preamble as a system message
func withToolInstructions(messages []model.Message, tools []mcptypes.Tool) []model.Message {
	if len(tools) == 0 {
		return messages
	}
	preamble := model.Message{Role: model.RoleSystem, Content: buildToolInstructions(tools)}
	return append([]model.Message{preamble}, messages...)
}

// shouldSkipToolInstructions lists model families that leak the preamble
// back as text but handle tools natively without it
func shouldSkipToolInstructions(modelName string) bool {
	return strings.Contains(strings.ToLower(modelName), "qwen")
}
