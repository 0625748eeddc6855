package testutil

import (
	"context"
	"sync"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"chatdesk/model"
	"chatdesk/ollama"
)

// Call records one ChatWithTools invocation
type Call struct {
	Messages []model.Message
	Tools    []mcptypes.Tool
}

// MockProvider implements model.Provider for tests. Each chat call plays the
// next scripted round of deltas; once the script runs out it replies
// "Mock response". Set ChatWithToolsFunc to take over completely.
type MockProvider struct {
	ChatWithToolsFunc func(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error
	ListModelsFunc    func(ctx context.Context) ([]ollama.ModelInfo, error)
	PingFunc          func(ctx context.Context) error

	mu           sync.Mutex
	rounds       [][]model.StreamDelta
	calls        []Call
	currentModel string
}

// NewMockProvider creates a mock that plays rounds in order
func NewMockProvider(modelName string, rounds ...[]model.StreamDelta) *MockProvider {
	return &MockProvider{currentModel: modelName, rounds: rounds}
}

// Text is a one-round helper: the reply arrives as the given content chunks
func Text(chunks ...string) []model.StreamDelta {
	out := make([]model.StreamDelta, len(chunks))
	for i, c := range chunks {
		out[i] = model.StreamDelta{Content: c}
	}
	return out
}

// Calls returns a copy of every recorded chat call
func (m *MockProvider) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *MockProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return m.ChatWithTools(ctx, messages, nil, callback)
}

func (m *MockProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	m.mu.Lock()
	m.calls = append(m.calls, Call{
		Messages: append([]model.Message(nil), messages...),
		Tools:    tools,
	})
	var round []model.StreamDelta
	if len(m.rounds) > 0 {
		round, m.rounds = m.rounds[0], m.rounds[1:]
	} else {
		round = Text("Mock response")
	}
	fn := m.ChatWithToolsFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, messages, tools, callback)
	}

	for _, d := range round {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := callback(d); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	if m.ListModelsFunc != nil {
		return m.ListModelsFunc(ctx)
	}
	return []ollama.ModelInfo{
		{Name: "mock-model-1", InternalName: "mock-model-1", Provider: "mock", Size: 1000},
		{Name: "mock-model-2", InternalName: "mock-model-2", Provider: "mock", Size: 2000},
	}, nil
}

func (m *MockProvider) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentModel
}

func (m *MockProvider) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentModel = model
}

func (m *MockProvider) Ping(ctx context.Context) error {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return nil
}
