package completion

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ProviderConfig describes one configured provider.
type ProviderConfig struct {
	Type    string // "anthropic", "openai", "mock"
	APIKey  string
	Model   string
	RPM     int
	Enabled bool
}

// RegistryConfig is the config-driven view of all providers.
type RegistryConfig struct {
	Providers map[string]ProviderConfig
	Default   string
}

// Registry holds completion clients keyed by name. It supports
// config-driven instantiation and hot reload.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]Client
	defaultName string
	logger      *slog.Logger
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]Client),
		logger:  slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// Reload replaces the registry contents from config.
// Disabled or unknown provider types are skipped with a warning.
func (r *Registry) Reload(cfg RegistryConfig) {
	clients := make(map[string]Client)

	for name, pc := range cfg.Providers {
		if !pc.Enabled {
			continue
		}
		client, err := buildClient(pc)
		if err != nil {
			r.logger.Warn("skipping provider", "name", name, "error", err)
			continue
		}
		clients[name] = client
	}

	r.mu.Lock()
	r.clients = clients
	r.defaultName = cfg.Default
	r.mu.Unlock()

	r.logger.Info("completion registry reloaded", "providers", len(clients))
}

// Register adds a client under an explicit name (used by tests).
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	if r.defaultName == "" {
		r.defaultName = name
	}
}

// Get returns a client by name.
func (r *Registry) Get(name string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("completion provider not found: %s", name)
	}
	return client, nil
}

// Default returns the configured default client.
func (r *Registry) Default() (Client, error) {
	r.mu.RLock()
	name := r.defaultName
	r.mu.RUnlock()
	if name == "" {
		return nil, fmt.Errorf("no default completion provider configured")
	}
	return r.Get(name)
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildClient(pc ProviderConfig) (Client, error) {
	switch pc.Type {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.Model,
			RPM:          pc.RPM,
		}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.Model,
			RPM:          pc.RPM,
		}), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", pc.Type)
	}
}
