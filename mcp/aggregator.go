package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// nameSeparator joins server id and tool name. Provider APIs only accept
// [a-zA-Z0-9_-] in tool names, so a dot is not usable here.
const nameSeparator = "__"

// QualifiedName is the name a tool is exposed under to models
func QualifiedName(serverID, tool string) string {
	return serverID + nameSeparator + tool
}

// ParseToolName splits a qualified name back into server id and tool name.
// A name without separator yields an empty server id.
func ParseToolName(name string) (string, string) {
	idx := strings.Index(name, nameSeparator)
	if idx == -1 {
		return "", name
	}
	return name[:idx], name[idx+len(nameSeparator):]
}

// Tools returns the tools of every running server under their qualified names
func (m *Manager) Tools() []mcptypes.Tool {
	var all []mcptypes.Tool
	for _, id := range m.ServerIDs() {
		m.mu.RLock()
		srv, ok := m.servers[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		for _, tool := range srv.tools {
			t := tool
			t.Name = QualifiedName(id, tool.Name)
			all = append(all, t)
		}
	}
	return all
}

// CallTool runs a tool by qualified name
func (m *Manager) CallTool(ctx context.Context, name string, args map[string]any) (*mcptypes.CallToolResult, error) {
	serverID, tool := ParseToolName(name)

	m.mu.RLock()
	srv, ok := m.servers[serverID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no tool server for %q", name)
	}

	m.log.Debug().Str("server", serverID).Str("tool", tool).Msg("calling tool")
	return srv.session.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      tool,
			Arguments: args,
		},
	})
}

// ResultText flattens a tool result into the text handed back to the model
func ResultText(result *mcptypes.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return "Tool executed successfully (no output)"
	}

	var texts []string
	for _, c := range result.Content {
		if tc, ok := mcptypes.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
			continue
		}
		raw, err := json.Marshal(c)
		if err != nil {
			continue
		}
		texts = append(texts, string(raw))
	}
	if len(texts) == 0 {
		return "Tool executed successfully (no output)"
	}
	return strings.Join(texts, "\n")
}
