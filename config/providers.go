package config

import (
	"fmt"
)

// ProviderConfig is one [[providers]] entry
type ProviderConfig struct {
	ID      string `toml:"id"`
	Name    string `toml:"name"`
	Enabled bool   `toml:"enabled"`
	BaseURL string `toml:"base_url,omitempty"`

	// ThinkingBudget enables extended thinking on Anthropic models when > 0
	ThinkingBudget int64 `toml:"thinking_budget,omitempty"`
}

// Provider returns the entry for providerID, falling back to built-in defaults
func (c *Config) Provider(providerID string) (ProviderConfig, bool) {
	for _, p := range c.Providers {
		if p.ID == providerID {
			if p.BaseURL == "" {
				p.BaseURL = getProviderDefaultBaseURL(providerID)
			}
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// UpdateProviderField updates a single provider configuration field.
//
// Fields:
//   - all providers: "base_url", "enabled"
//   - cloud providers: "apikey" (stored in the credential store)
func UpdateProviderField(cfg *Config, providerID, fieldName, value string) error {
	dataDir := cfg.DataDir()

	if fieldName == "apikey" {
		if providerID == "ollama" {
			return fmt.Errorf("ollama does not use an API key")
		}
		if cfg.CredentialStore == nil {
			return fmt.Errorf("no credential store configured")
		}
		if err := cfg.CredentialStore.Set(providerID, value); err != nil {
			return fmt.Errorf("failed to set API key: %w", err)
		}
		if err := cfg.CredentialStore.Save(dataDir); err != nil {
			return fmt.Errorf("failed to persist credentials: %w", err)
		}
		return nil
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	p := findOrAddProvider(userCfg, providerID)
	switch fieldName {
	case "base_url":
		p.BaseURL = value
	case "enabled":
		p.Enabled = value == "true"
	default:
		return fmt.Errorf("unknown field for %s: %s", providerID, fieldName)
	}

	if err := SaveUserConfig(userCfg, dataDir); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	cfg.Providers = userCfg.Providers
	return nil
}

func findOrAddProvider(cfg *UserConfig, providerID string) *ProviderConfig {
	for i := range cfg.Providers {
		if cfg.Providers[i].ID == providerID {
			return &cfg.Providers[i]
		}
	}
	cfg.Providers = append(cfg.Providers, ProviderConfig{
		ID:      providerID,
		Name:    getProviderDisplayName(providerID),
		BaseURL: getProviderDefaultBaseURL(providerID),
	})
	return &cfg.Providers[len(cfg.Providers)-1]
}

// getProviderDisplayName returns the display name for a provider
func getProviderDisplayName(providerID string) string {
	switch providerID {
	case "ollama":
		return "Ollama"
	case "openrouter":
		return "OpenRouter"
	case "anthropic":
		return "Anthropic"
	case "openai":
		return "OpenAI"
	default:
		return providerID
	}
}

// getProviderDefaultBaseURL returns the default base URL for a provider
func getProviderDefaultBaseURL(providerID string) string {
	switch providerID {
	case "ollama":
		return "http://localhost:11434"
	case "openrouter":
		return "https://openrouter.ai/api/v1"
	case "anthropic":
		return "https://api.anthropic.com"
	case "openai":
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}
