package provider

// ProviderType identifies a provider implementation.
// The model.Provider interface lives in the model package to avoid import cycles.
type ProviderType string

const (
	ProviderTypeOllama     ProviderType = "ollama"
	ProviderTypeOpenRouter ProviderType = "openrouter"
	ProviderTypeOpenAI     ProviderType = "openai"
	ProviderTypeAnthropic  ProviderType = "anthropic"
)

// Config holds what NewProvider needs to build one provider instance
type Config struct {
	Type    ProviderType
	BaseURL string
	Model   string
	APIKey  string // unused for Ollama

	// ThinkingBudget is the Anthropic extended-thinking token budget, 0 disables it
	ThinkingBudget int64
}
