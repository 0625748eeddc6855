package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.1:latest"
)

// Client wraps the Ollama API client with the currently selected model
type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// StreamCallback receives each streamed message increment: content,
// thinking and tool calls arrive on the same message.
type StreamCallback func(msg api.Message) error

// NewClient creates a client for the Ollama server at baseURL
func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid Ollama URL: %q", baseURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		baseURL: baseURL,
	}, nil
}

func (c *Client) Chat(ctx context.Context, messages []api.Message, callback StreamCallback) error {
	return c.ChatWithTools(ctx, messages, nil, callback)
}

// ChatWithTools streams a chat completion, passing each increment to callback
func (c *Client) ChatWithTools(ctx context.Context, messages []api.Message, tools []api.Tool, callback StreamCallback) error {
	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Tools:    tools,
		Stream:   &stream,
	}

	return c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if callback == nil {
			return nil
		}
		return callback(resp.Message)
	})
}

// ModelInfo describes a model offered by any provider
type ModelInfo struct {
	Name         string `json:"name"` // display name
	Size         int64  `json:"size,omitempty"`
	Provider     string `json:"provider"`
	InternalName string `json:"internal_name"` // name sent to the API
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{
			Name:         m.Name,
			Size:         m.Size,
			Provider:     "ollama",
			InternalName: m.Name,
		}
	}
	return models, nil
}

func (c *Client) SetModel(model string) {
	c.model = model
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks the server is reachable, giving up after 5 seconds
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// toolCallingModels maps model name prefixes to native tool support
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,
	"gpt-oss":   true,

	"llama3-gradient": false,
	"llama3":          false,
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes is checked longest-first so "llama3.1" wins over "llama3"
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3", "gpt-oss",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

func (c *Client) SupportsToolCalling() bool {
	return ModelSupportsToolCalling(c.model)
}

// ModelSupportsToolCalling reports whether modelName is known to handle tools.
// Unknown models are assumed not to.
func ModelSupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)

	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
