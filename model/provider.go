package model

import (
	"context"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"chatdesk/ollama"
)

// Provider abstracts LLM provider implementations (Ollama, OpenAI, OpenRouter, Anthropic)
// using provider-agnostic types from the model layer.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations import model, and the engine uses the
// Provider interface without importing every SDK.
type Provider interface {
	// Chat sends messages and streams responses back via callback.
	Chat(ctx context.Context, messages []Message, callback StreamCallback) error

	// ChatWithTools sends messages with available tools and streams responses.
	ChatWithTools(ctx context.Context, messages []Message, tools []mcptypes.Tool, callback StreamCallback) error

	// ListModels returns available models for this provider.
	ListModels(ctx context.Context) ([]ollama.ModelInfo, error)

	// GetModel returns the currently selected model name used for API calls.
	GetModel() string

	// SetModel changes the active model.
	SetModel(model string)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}

// StreamDelta is one increment of provider output. Any combination of fields may be set.
type StreamDelta struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
}

// Empty reports whether the delta carries nothing
func (d StreamDelta) Empty() bool {
	return d.Content == "" && d.Reasoning == "" && len(d.ToolCalls) == 0
}

// StreamCallback is called for each increment of a streamed response.
// Returning an error aborts the stream.
type StreamCallback func(delta StreamDelta) error
