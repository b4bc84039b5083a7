package provider

import (
	"fmt"
	"log/slog"
	"sync"

	"honeypot/internal/config"
	"honeypot/internal/domain"
)

// Constructor builds a provider from a config entry.
type Constructor func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider

// Factory creates and caches oracle providers from config.
type Factory struct {
	cfg          *config.Config
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Provider
	mu           sync.RWMutex
}

// NewFactory creates a provider factory with the built-in constructors
// registered.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	f := &Factory{
		cfg:          cfg,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Provider),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds (or replaces) a provider constructor by name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["openrouter"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOpenRouter(OpenRouterConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Logger: logger})
	}
	// Groq shares the OpenAI-compatible wire format; key prefix routing
	// handles the endpoint.
	f.constructors["groq"] = f.constructors["openrouter"]

	f.constructors["ollama"] = func(pc config.ProviderConfig, logger *slog.Logger) domain.Provider {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Logger: logger})
	}
}

// Get returns the provider with the given name, or the default if name is
// empty. Created providers are cached so the same instance is reused across
// calls. Uses double-check locking to avoid TOCTOU races.
func (f *Factory) Get(name string) (domain.Provider, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	// Fast path: read lock.
	f.mu.RLock()
	if cached, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return cached, nil
	}
	f.mu.RUnlock()

	// Slow path: write lock with double-check.
	f.mu.Lock()
	defer f.mu.Unlock()
	if cached, ok := f.cache[name]; ok {
		return cached, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %q is disabled", name)
	}

	ctor, ok := f.constructors[name]
	if !ok {
		return nil, fmt.Errorf("no constructor for provider %q", name)
	}

	p := ctor(pc, f.logger.With("provider", name))
	f.cache[name] = p
	return p, nil
}

// Chain builds the configured failover chain, or the single default provider
// when no chain is configured.
func (f *Factory) Chain() (domain.Provider, error) {
	names := f.cfg.General.FailoverChain
	if len(names) == 0 {
		return f.Get("")
	}

	providers := make([]domain.Provider, 0, len(names))
	for _, name := range names {
		p, err := f.Get(name)
		if err != nil {
			return nil, fmt.Errorf("failover chain: %w", err)
		}
		providers = append(providers, p)
	}
	return NewFailoverProvider(providers, f.logger), nil
}
