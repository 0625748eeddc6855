package provider

import (
	"context"
	"fmt"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"

	"chatdesk/mcp"
	"chatdesk/model"
	"chatdesk/ollama"
)

// OllamaProvider adapts the Ollama client to model.Provider
type OllamaProvider struct {
	client *ollama.Client
}

func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaProvider{client: client}, nil
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams a reply. Tools are dropped for models without
// native tool support since those answer with garbage when sent any.
func (p *OllamaProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if len(tools) > 0 && !p.client.SupportsToolCalling() {
		tools = nil
	}
	if !shouldSkipToolInstructions(p.client.GetModel()) {
		messages = withToolInstructions(messages, tools)
	}

	err := p.client.ChatWithTools(ctx, ConvertToOllamaMessages(messages), mcp.OllamaTools(tools), func(msg api.Message) error {
		if callback == nil {
			return nil
		}
		delta := model.StreamDelta{
			Content:   msg.Content,
			Reasoning: msg.Thinking,
			ToolCalls: ConvertToProviderToolCalls(msg.ToolCalls),
		}
		if delta.Empty() {
			return nil
		}
		return callback(delta)
	})
	if err != nil {
		return fmt.Errorf("Ollama streaming error: %w", err)
	}
	return nil
}

func (p *OllamaProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	return p.client.ListModels(ctx)
}

func (p *OllamaProvider) GetModel() string {
	return p.client.GetModel()
}

func (p *OllamaProvider) SetModel(model string) {
	p.client.SetModel(model)
}

func (p *OllamaProvider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
