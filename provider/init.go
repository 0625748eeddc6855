package provider

import (
	"fmt"

	"github.com/rs/zerolog"

	"chatdesk/config"
	"chatdesk/model"
)

// Resolver builds a provider for each turn from the loaded configuration.
// Providers are cheap to create and carry the model, so they are not shared
// between conversations.
type Resolver struct {
	cfg         *config.Config
	log         zerolog.Logger
	newProvider func(Config) (model.Provider, error)
}

func NewResolver(cfg *config.Config, log zerolog.Logger) *Resolver {
	return &Resolver{
		cfg:         cfg,
		log:         log.With().Str("component", "provider").Logger(),
		newProvider: NewProvider,
	}
}

// Resolve returns a provider for providerID set to modelName. Empty values
// fall back to the configured defaults. apiKey, when set, wins over stored
// credentials.
func (r *Resolver) Resolve(providerID, modelName, apiKey string) (model.Provider, error) {
	if providerID == "" {
		providerID = r.cfg.DefaultProvider
	}
	if modelName == "" {
		modelName = r.cfg.DefaultModel
	}

	pc, ok := r.cfg.Provider(providerID)
	if !ok {
		if providerID != "ollama" {
			return nil, fmt.Errorf("unknown provider %q", providerID)
		}
		pc = config.ProviderConfig{ID: "ollama", Enabled: true}
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", providerID)
	}

	if apiKey == "" {
		apiKey = r.cfg.APIKey(providerID)
	}

	p, err := r.newProvider(Config{
		Type:           MapProviderIDToType(providerID),
		BaseURL:        pc.BaseURL,
		Model:          modelName,
		APIKey:         apiKey,
		ThinkingBudget: pc.ThinkingBudget,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %s: %w", providerID, err)
	}

	r.log.Debug().Str("provider", providerID).Str("model", p.GetModel()).Msg("provider resolved")
	return p, nil
}

// InitializeProviders creates every enabled provider. Failures are logged
// and skipped so one bad key does not hide the other providers.
func InitializeProviders(cfg *config.Config, log zerolog.Logger) map[string]model.Provider {
	r := NewResolver(cfg, log)
	providers := make(map[string]model.Provider)

	for _, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		p, err := r.Resolve(pc.ID, "", "")
		if err != nil {
			r.log.Warn().Err(err).Str("provider", pc.ID).Msg("provider unavailable")
			continue
		}
		providers[pc.ID] = p
	}
	return providers
}
