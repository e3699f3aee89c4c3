package config

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: map[string]ProviderCfg{
			"anthropic": {
				Type:    "anthropic",
				Model:   "claude-sonnet-4-20250514",
				APIKey:  "${ANTHROPIC_API_KEY}",
				RPM:     50,
				Enabled: true,
			},
			"openai": {
				Type:    "openai",
				Model:   "gpt-4o",
				APIKey:  "${OPENAI_API_KEY}",
				RPM:     60,
				Enabled: false,
			},
		},
		Defaults: DefaultsCfg{
			Provider:   "anthropic",
			PageBudget: 100,
			MaxTokens:  8192,
		},
		Database: DatabaseCfg{
			MaxConns:      8,
			ContainerName: "duework-postgres",
			Image:         "postgres:17-alpine",
			Port:          "5433",
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: "8080",
		},
		Worker: WorkerCfg{
			PollIntervalSeconds: 5,
		},
	}
}
