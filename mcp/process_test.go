package mcp

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/config"
)

func newEchoSession(t *testing.T) *client.Client {
	t.Helper()
	ctx := context.Background()

	srv := server.NewMCPServer("echo", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(mcptypes.NewTool("echo",
		mcptypes.WithDescription("Echo text back"),
		mcptypes.WithString("text", mcptypes.Required()),
	), func(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcptypes.NewToolResultError(err.Error()), nil
		}
		return mcptypes.NewToolResultText(text), nil
	})

	c, err := client.NewInProcessClient(srv)
	require.NoError(t, err)
	require.NoError(t, c.Start(ctx))

	_, err = c.Initialize(ctx, mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			ClientInfo:      mcptypes.Implementation{Name: "test", Version: "0"},
		},
	})
	require.NoError(t, err)
	return c
}

func TestManagerToolsAndCalls(t *testing.T) {
	ctx := context.Background()
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.add(ctx, "util", newEchoSession(t), nil))
	t.Cleanup(m.Shutdown)

	tools := m.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "util__echo", tools[0].Name)
	assert.Equal(t, []string{"util"}, m.ServerIDs())

	result, err := m.CallTool(ctx, "util__echo", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "hi", ResultText(result))

	result, err = m.CallTool(ctx, "util__echo", map[string]any{})
	require.NoError(t, err)
	assert.True(t, result.IsError)

	_, err = m.CallTool(ctx, "other__echo", nil)
	assert.Error(t, err)
}

func TestManagerStop(t *testing.T) {
	m := NewManager(zerolog.Nop())
	require.NoError(t, m.add(context.Background(), "util", newEchoSession(t), nil))

	require.NoError(t, m.Stop("util"))
	assert.Empty(t, m.Tools())
	assert.Error(t, m.Stop("util"))
}

func TestStartRejectsIncompleteConfig(t *testing.T) {
	m := NewManager(zerolog.Nop())
	assert.Error(t, m.Start(context.Background(), config.ToolConfig{ID: "x"}))
	assert.Error(t, m.Start(context.Background(), config.ToolConfig{Command: "x"}))
}

func TestParseToolName(t *testing.T) {
	tests := []struct {
		in           string
		server, tool string
	}{
		{"fs__read_file", "fs", "read_file"},
		{"fs__deep__name", "fs", "deep__name"},
		{"plain", "", "plain"},
	}
	for _, tt := range tests {
		server, tool := ParseToolName(tt.in)
		assert.Equal(t, tt.server, server, tt.in)
		assert.Equal(t, tt.tool, tool, tt.in)
	}
	assert.Equal(t, "fs__read_file", QualifiedName("fs", "read_file"))
}

func TestResultText(t *testing.T) {
	assert.Equal(t, "Tool executed successfully (no output)", ResultText(nil))
	assert.Equal(t, "Tool executed successfully (no output)", ResultText(&mcptypes.CallToolResult{}))

	result := &mcptypes.CallToolResult{Content: []mcptypes.Content{
		mcptypes.NewTextContent("one"),
		mcptypes.NewTextContent("two"),
	}}
	assert.Equal(t, "one\ntwo", ResultText(result))
}
