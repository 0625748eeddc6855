package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"chatdesk/model"
	"chatdesk/ollama"
)

// ProviderStatus is the outcome of checking one provider
type ProviderStatus struct {
	ProviderID string
	Valid      bool
	Models     []ollama.ModelInfo
	Err        error
}

// CheckProviders pings every provider and lists its models concurrently.
// Results are sorted by provider id.
func CheckProviders(ctx context.Context, providers map[string]model.Provider, timeout time.Duration) []ProviderStatus {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make([]ProviderStatus, 0, len(providers))
	)

	for id, p := range providers {
		wg.Add(1)
		go func(id string, p model.Provider) {
			defer wg.Done()

			status := checkProvider(ctx, id, p, timeout)

			mu.Lock()
			out = append(out, status)
			mu.Unlock()
		}(id, p)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out
}

func checkProvider(ctx context.Context, id string, p model.Provider, timeout time.Duration) ProviderStatus {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := p.Ping(ctx); err != nil {
		return ProviderStatus{ProviderID: id, Err: fmt.Errorf("connection failed: %w", err)}
	}

	models, err := p.ListModels(ctx)
	if err != nil {
		return ProviderStatus{ProviderID: id, Valid: true, Err: err}
	}
	return ProviderStatus{ProviderID: id, Valid: true, Models: models}
}
