package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatdesk/config"
	"chatdesk/model"
	"chatdesk/ollama"
	"chatdesk/provider/testutil"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		wantErr   bool
		wantModel string
	}{
		{"ollama defaults", Config{Type: ProviderTypeOllama}, false, "llama3.1:latest"},
		{"ollama bad url", Config{Type: ProviderTypeOllama, BaseURL: "::nope"}, true, ""},
		{"openai", Config{Type: ProviderTypeOpenAI, APIKey: "sk"}, false, "gpt-4o-mini"},
		{"openai without key", Config{Type: ProviderTypeOpenAI}, true, ""},
		{"openrouter", Config{Type: ProviderTypeOpenRouter, APIKey: "sk", Model: "x/y"}, false, "x/y"},
		{"anthropic", Config{Type: ProviderTypeAnthropic, APIKey: "sk"}, false, "claude-sonnet-4-5"},
		{"anthropic without key", Config{Type: ProviderTypeAnthropic}, true, ""},
		{"unknown", Config{Type: "gemini"}, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, p.GetModel())

			p.SetModel("other")
			assert.Equal(t, "other", p.GetModel())
		})
	}
}

func TestMapProviderIDToType(t *testing.T) {
	assert.Equal(t, ProviderTypeOpenRouter, MapProviderIDToType("openrouter"))
	assert.Equal(t, ProviderTypeAnthropic, MapProviderIDToType("anthropic"))
	assert.Equal(t, ProviderType("custom"), MapProviderIDToType("custom"))
}

func TestResolver(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := config.LoadFromDataDir(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, config.UpdateProviderField(cfg, "openai", "enabled", "true"))
	cfg, err = config.LoadFromDataDir(cfg.DataDir())
	require.NoError(t, err)
	require.NoError(t, cfg.CredentialStore.Set("openai", "stored-key"))

	var got Config
	r := NewResolver(cfg, zerolog.Nop())
	r.newProvider = func(c Config) (model.Provider, error) {
		got = c
		return testutil.NewMockProvider(c.Model), nil
	}

	p, err := r.Resolve("", "", "")
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOllama, got.Type)
	assert.Equal(t, cfg.DefaultModel, p.GetModel())

	_, err = r.Resolve("openai", "gpt-4o", "")
	require.NoError(t, err)
	assert.Equal(t, "stored-key", got.APIKey)
	assert.Equal(t, "gpt-4o", got.Model)

	_, err = r.Resolve("openai", "gpt-4o", "request-key")
	require.NoError(t, err)
	assert.Equal(t, "request-key", got.APIKey)

	_, err = r.Resolve("anthropic", "", "")
	assert.ErrorContains(t, err, "disabled")

	_, err = r.Resolve("gemini", "", "")
	assert.ErrorContains(t, err, "unknown provider")

	r.newProvider = func(Config) (model.Provider, error) { return nil, errors.New("boom") }
	_, err = r.Resolve("ollama", "", "")
	assert.ErrorContains(t, err, "boom")
}

func TestAnthropicThinkingBudgetFloor(t *testing.T) {
	p, err := NewAnthropicProvider("", "sk", "")
	require.NoError(t, err)

	p.SetThinkingBudget(10)
	assert.Equal(t, int64(minThinkingBudget), p.thinkingBudget)
	p.SetThinkingBudget(0)
	assert.Zero(t, p.thinkingBudget)
}

func TestCheckProviders(t *testing.T) {
	ok := testutil.NewMockProvider("a")
	down := testutil.NewMockProvider("b")
	down.PingFunc = func(context.Context) error { return errors.New("refused") }
	noModels := testutil.NewMockProvider("c")
	noModels.ListModelsFunc = func(context.Context) ([]ollama.ModelInfo, error) { return nil, errors.New("forbidden") }

	statuses := CheckProviders(context.Background(), map[string]model.Provider{
		"zeta": ok, "alpha": down, "mid": noModels,
	}, time.Second)

	require.Len(t, statuses, 3)
	assert.Equal(t, "alpha", statuses[0].ProviderID)
	assert.False(t, statuses[0].Valid)
	assert.ErrorContains(t, statuses[0].Err, "refused")

	assert.Equal(t, "mid", statuses[1].ProviderID)
	assert.True(t, statuses[1].Valid)
	assert.Error(t, statuses[1].Err)

	assert.Equal(t, "zeta", statuses[2].ProviderID)
	assert.NoError(t, statuses[2].Err)
	assert.Len(t, statuses[2].Models, 2)
}
