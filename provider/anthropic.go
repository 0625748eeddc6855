package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"chatdesk/mcp"
	"chatdesk/model"
	"chatdesk/ollama"
)

const (
	anthropicMaxTokens = 8192
	minThinkingBudget  = 1024
)

// AnthropicProvider implements model.Provider with the Messages API
type AnthropicProvider struct {
	client         *anthropic.Client
	model          anthropic.Model
	baseURL        string
	thinkingBudget int64
}

func NewAnthropicProvider(baseURL, apiKey, model string) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	m := anthropic.ModelClaudeSonnet4_5
	if model != "" {
		m = anthropic.Model(model)
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &AnthropicProvider{
		client:  &client,
		model:   m,
		baseURL: baseURL,
	}, nil
}

// SetThinkingBudget enables extended thinking. Budgets below the API
// minimum of 1024 tokens are raised to it; 0 disables thinking.
func (p *AnthropicProvider) SetThinkingBudget(tokens int64) {
	if tokens > 0 && tokens < minThinkingBudget {
		tokens = minThinkingBudget
	}
	p.thinkingBudget = tokens
}

func (p *AnthropicProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams text and thinking deltas; tool_use blocks are
// reported once the message is complete and their input is known.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if callback == nil {
		callback = func(model.StreamDelta) error { return nil }
	}

	params := p.buildParams(messages, tools)

	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	msg := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return fmt.Errorf("error accumulating message: %w", err)
		}

		ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
		if !ok {
			continue
		}
		var delta model.StreamDelta
		switch d := ev.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			delta.Content = d.Text
		case anthropic.ThinkingDelta:
			delta.Reasoning = d.Thinking
		}
		if delta.Empty() {
			continue
		}
		if err := callback(delta); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("Anthropic streaming error: %w", err)
	}

	if calls := extractToolCalls(msg.Content); len(calls) > 0 {
		return callback(model.StreamDelta{ToolCalls: calls})
	}
	return nil
}

func (p *AnthropicProvider) buildParams(messages []model.Message, tools []mcptypes.Tool) anthropic.MessageNewParams {
	converted, system := convertToAnthropicMessages(withToolInstructions(messages, tools))

	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  converted,
		MaxTokens: anthropicMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if len(tools) > 0 {
		params.Tools = mcp.AnthropicTools(tools)
	}

	// Thinking blocks are not kept in history, and the API rejects a
	// thinking request that continues a tool_use turn without them.
	if p.thinkingBudget > 0 && !continuesToolTurn(messages) {
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(p.thinkingBudget)
		if p.thinkingBudget >= params.MaxTokens {
			params.MaxTokens = p.thinkingBudget + anthropicMaxTokens
		}
	}
	return params
}

func continuesToolTurn(messages []model.Message) bool {
	return len(messages) > 0 && messages[len(messages)-1].Role == model.RoleTool
}

// convertToAnthropicMessages splits out system messages and maps the rest.
// Consecutive tool results are grouped into one user message, as the API
// requires all results for a tool_use turn in the following message.
func convertToAnthropicMessages(messages []model.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))

	var results []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == model.RoleTool && msg.ToolCallID != "" {
			results = append(results, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
			continue
		}
		flushResults()

		switch msg.Role {
		case model.RoleSystem:
			if msg.Content != "" {
				system = append(system, anthropic.TextBlockParam{Text: msg.Content})
			}
		case model.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}
		default:
			if msg.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	flushResults()

	return out, system
}

func extractToolCalls(content []anthropic.ContentBlockUnion) []model.ToolCall {
	var calls []model.ToolCall

	for _, block := range content {
		toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
		if !ok {
			continue
		}
		args := map[string]any{}
		if len(toolUse.Input) > 0 {
			if err := json.Unmarshal(toolUse.Input, &args); err != nil {
				continue
			}
		}
		calls = append(calls, model.ToolCall{
			ID:        toolUse.ID,
			Name:      toolUse.Name,
			Arguments: args,
		})
	}
	return calls
}

func (p *AnthropicProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	models := []anthropic.Model{
		anthropic.ModelClaudeSonnet4_5,
		anthropic.ModelClaudeHaiku4_5,
		anthropic.ModelClaudeOpus4_5,
		anthropic.ModelClaudeOpus4_1_20250805,
		anthropic.ModelClaudeSonnet4_0,
	}

	result := make([]ollama.ModelInfo, len(models))
	for i, m := range models {
		result[i] = ollama.ModelInfo{
			Name:         string(m),
			InternalName: string(m),
			Provider:     "anthropic",
		}
	}
	return result, nil
}

func (p *AnthropicProvider) GetModel() string {
	return string(p.model)
}

func (p *AnthropicProvider) SetModel(model string) {
	p.model = anthropic.Model(model)
}

// Ping sends a one-token request, which also validates the key
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("Anthropic ping failed: %w", err)
	}
	return nil
}
