package provider

import (
	"context"
	"fmt"
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/tidwall/gjson"

	"chatdesk/mcp"
	"chatdesk/model"
	"chatdesk/ollama"
)

const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
)

// OpenAIProvider talks to any chat-completions compatible API.
// OpenAI and OpenRouter are the two configured flavours.
type OpenAIProvider struct {
	client  openai.Client
	id      string // "openai" or "openrouter"
	label   string
	model   string
	baseURL string
}

// NewOpenAIProvider creates a provider for the OpenAI API
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return newChatCompletionsProvider("openai", "OpenAI", baseURL, openAIBaseURL, apiKey, model)
}

// NewOpenRouterProvider creates a provider for OpenRouter
func NewOpenRouterProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if model == "" {
		model = "meta-llama/llama-3.2-90b-instruct"
	}
	return newChatCompletionsProvider("openrouter", "OpenRouter", baseURL, openRouterBaseURL, apiKey, model)
}

func newChatCompletionsProvider(id, label, baseURL, defaultBaseURL, apiKey, model string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key is required", label)
	}

	return &OpenAIProvider{
		client: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		id:      id,
		label:   label,
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []model.Message, callback model.StreamCallback) error {
	return p.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams a completion. Content and reasoning deltas are
// forwarded as they arrive; tool calls once their arguments are complete.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []model.Message, tools []mcptypes.Tool, callback model.StreamCallback) error {
	if callback == nil {
		callback = func(model.StreamDelta) error { return nil }
	}
	if !shouldSkipToolInstructions(p.model) {
		messages = withToolInstructions(messages, tools)
	}

	params := openai.ChatCompletionNewParams{
		Messages: ConvertToOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}
	if len(tools) > 0 {
		params.Tools = mcp.OpenAITools(tools)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()
	acc := openai.ChatCompletionAccumulator{}

	emitted := map[int]bool{}
	var content strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if tool, ok := acc.JustFinishedToolCall(); ok {
			emitted[tool.Index] = true
			call := finishedToolCall(tool.ID, tool.Name, tool.Arguments)
			if err := callback(model.StreamDelta{ToolCalls: []model.ToolCall{call}}); err != nil {
				return err
			}
		}

		if len(chunk.Choices) == 0 {
			continue
		}
		delta := model.StreamDelta{
			Content: chunk.Choices[0].Delta.Content,
			// OpenRouter and several compatible servers put thinking in a non-standard field
			Reasoning: reasoningDelta(chunk.RawJSON()),
		}
		if delta.Empty() {
			continue
		}
		content.WriteString(delta.Content)
		if err := callback(delta); err != nil {
			return err
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("%s streaming error: %w", p.label, err)
	}

	// A call in the final chunk is never reported by JustFinishedToolCall
	var pending []model.ToolCall
	if len(acc.Choices) > 0 {
		for i, tc := range acc.Choices[0].Message.ToolCalls {
			if !emitted[i] && tc.Function.Name != "" {
				pending = append(pending, finishedToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
				emitted[i] = true
			}
		}
	}

	if len(emitted) == 0 {
		pending = ParseLeakedJSONToolCalls(content.String())
		if len(pending) == 0 {
			pending = ParseLeakedXMLToolCalls(content.String())
		}
	}

	if len(pending) > 0 {
		return callback(model.StreamDelta{ToolCalls: pending})
	}
	return nil
}

func finishedToolCall(id, name, arguments string) model.ToolCall {
	if id == "" {
		id = newToolCallID()
	}
	return model.ToolCall{ID: id, Name: name, Arguments: ParseToolArguments(arguments)}
}

// reasoningDelta extracts choices[0].delta.reasoning or reasoning_content from a raw chunk
func reasoningDelta(raw string) string {
	if raw == "" {
		return ""
	}
	delta := gjson.Get(raw, "choices.0.delta")
	if r := delta.Get("reasoning"); r.Type == gjson.String {
		return r.String()
	}
	return delta.Get("reasoning_content").String()
}

// ConvertToOpenAIMessages converts history to chat-completions messages,
// including assistant tool calls and their tool results
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case model.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				assistant.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: EncodeToolArguments(tc.Arguments),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case model.RoleTool:
			if msg.ToolCallID == "" {
				result = append(result, openai.UserMessage(msg.Content))
				continue
			}
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}

	return result
}

// ListModels lists models; OpenRouter names get their vendor prefix stripped for display
func (p *OpenAIProvider) ListModels(ctx context.Context) ([]ollama.ModelInfo, error) {
	page, err := p.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s models: %w", p.label, err)
	}

	result := make([]ollama.ModelInfo, 0, len(page.Data))
	for _, m := range page.Data {
		name := m.ID
		if p.id == "openrouter" {
			name = stripProviderPrefix(m.ID)
		}
		result = append(result, ollama.ModelInfo{
			Name:         name,
			InternalName: m.ID,
			Provider:     p.id,
		})
	}
	return result, nil
}

func (p *OpenAIProvider) GetModel() string {
	return p.model
}

func (p *OpenAIProvider) SetModel(model string) {
	p.model = model
}

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("%s ping failed: %w", p.label, err)
	}
	return nil
}
