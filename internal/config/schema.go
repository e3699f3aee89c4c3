package config

// Config holds duework configuration.
// Stored at: ~/.duework/config.yaml
type Config struct {
	Providers map[string]ProviderCfg `mapstructure:"providers" yaml:"providers"`
	Defaults  DefaultsCfg            `mapstructure:"defaults" yaml:"defaults"`
	Database  DatabaseCfg            `mapstructure:"database" yaml:"database"`
	Server    ServerCfg              `mapstructure:"server" yaml:"server"`
	Worker    WorkerCfg              `mapstructure:"worker" yaml:"worker"`
}

// ProviderCfg configures a completion provider.
type ProviderCfg struct {
	Type    string `mapstructure:"type" yaml:"type"`       // "anthropic", "openai", "mock"
	Model   string `mapstructure:"model" yaml:"model"`     // Model name
	APIKey  string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	RPM     int    `mapstructure:"rpm" yaml:"rpm"`         // Requests per minute
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default selections.
type DefaultsCfg struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`       // Default completion provider
	PageBudget int    `mapstructure:"page_budget" yaml:"page_budget"` // Max pages per completion call
	MaxTokens  int    `mapstructure:"max_tokens" yaml:"max_tokens"`   // Output token budget per call
}

// DatabaseCfg holds Postgres connection and local container settings.
type DatabaseCfg struct {
	// DSN is the Postgres connection string. Empty means the local
	// Docker-managed instance.
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" yaml:"max_conns"`

	// Local Docker container settings (duework db up).
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Image         string `mapstructure:"image" yaml:"image"`
	Port          string `mapstructure:"port" yaml:"port"`
}

// ServerCfg holds HTTP control plane settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// WorkerCfg holds poll loop settings.
type WorkerCfg struct {
	// PollIntervalSeconds is the delay between poll iterations.
	PollIntervalSeconds int `mapstructure:"poll_interval_seconds" yaml:"poll_interval_seconds"`
	// Queues restricts the worker to specific queues; empty means all.
	Queues []string `mapstructure:"queues" yaml:"queues"`
}

// GetProvider returns a provider config by name.
func (c *Config) GetProvider(name string) (ProviderCfg, bool) {
	cfg, ok := c.Providers[name]
	return cfg, ok
}

// EnabledProviders returns all enabled providers.
func (c *Config) EnabledProviders() map[string]ProviderCfg {
	result := make(map[string]ProviderCfg)
	for name, cfg := range c.Providers {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}
