package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"chatdesk/config"
)

const protocolVersion = "2025-06-18"

// session is the part of an MCP client the manager needs
type session interface {
	ListTools(ctx context.Context, req mcptypes.ListToolsRequest) (*mcptypes.ListToolsResult, error)
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
	Close() error
}

type server struct {
	id      string
	session session
	tools   []mcptypes.Tool
	cmd     *exec.Cmd // nil for injected sessions
}

// Manager runs the configured MCP servers and routes tool calls to them
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*server
	log     zerolog.Logger
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		servers: make(map[string]*server),
		log:     log.With().Str("component", "mcp").Logger(),
	}
}

// StartAll launches every configured server. A server that fails to start is
// logged and skipped so the others stay usable.
func (m *Manager) StartAll(ctx context.Context, tools []config.ToolConfig) {
	for _, cfg := range tools {
		if err := m.Start(ctx, cfg); err != nil {
			m.log.Warn().Err(err).Str("server", cfg.ID).Msg("failed to start tool server")
		}
	}
}

// Start launches one MCP server over stdio, initializes it and caches its tools
func (m *Manager) Start(ctx context.Context, cfg config.ToolConfig) error {
	if cfg.ID == "" || cfg.Command == "" {
		return fmt.Errorf("tool server needs an id and a command")
	}

	m.mu.RLock()
	_, running := m.servers[cfg.ID]
	m.mu.RUnlock()
	if running {
		return fmt.Errorf("tool server %s already running", cfg.ID)
	}

	var captured *exec.Cmd
	cmdFunc := func(ctx context.Context, command string, env []string, args []string) (*exec.Cmd, error) {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Env = env
		captured = cmd
		return cmd, nil
	}

	c, err := client.NewStdioMCPClientWithOptions(
		config.ExpandPath(cfg.Command),
		environ(cfg.Env),
		cfg.Args,
		transport.WithCommandFunc(cmdFunc),
	)
	if err != nil {
		return fmt.Errorf("failed to start %s: %w", cfg.ID, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "chatdesk",
				Version: "1.0.0",
			},
		},
	}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("failed to initialize %s: %w", cfg.ID, err)
	}

	if err := m.add(ctx, cfg.ID, c, captured); err != nil {
		c.Close()
		return err
	}

	if captured != nil && captured.Process != nil {
		m.log.Debug().Str("server", cfg.ID).Int("pid", captured.Process.Pid).Msg("tool server started")
	}
	return nil
}

// add registers an initialized session and caches its tool list
func (m *Manager) add(ctx context.Context, id string, s session, cmd *exec.Cmd) error {
	result, err := s.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("failed to list tools for %s: %w", id, err)
	}

	m.mu.Lock()
	m.servers[id] = &server{id: id, session: s, tools: result.Tools, cmd: cmd}
	m.mu.Unlock()

	m.log.Debug().Str("server", id).Int("tools", len(result.Tools)).Msg("tools registered")
	return nil
}

// environ keeps the parent environment (PATH etc.) and layers extra on top
func environ(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+config.ExpandPath(extra[k]))
	}
	return env
}

// Stop closes one server, killing its process if closing hangs
func (m *Manager) Stop(id string) error {
	m.mu.Lock()
	srv, ok := m.servers[id]
	delete(m.servers, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("tool server %s not found", id)
	}

	done := make(chan error, 1)
	go func() { done <- srv.session.Close() }()

	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		if srv.cmd != nil && srv.cmd.Process != nil {
			m.log.Warn().Str("server", id).Msg("close timed out, killing process")
			return srv.cmd.Process.Kill()
		}
		return fmt.Errorf("timed out closing %s", id)
	}
}

// Shutdown stops every server
func (m *Manager) Shutdown() {
	for _, id := range m.ServerIDs() {
		if err := m.Stop(id); err != nil {
			m.log.Debug().Err(err).Str("server", id).Msg("stop failed")
		}
	}
}

// ServerIDs lists running servers in sorted order
func (m *Manager) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.servers))
	for id := range m.servers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
