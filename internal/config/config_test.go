package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("TEST_DUEWORK_KEY", "secret-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple substitution", "${TEST_DUEWORK_KEY}", "secret-value"},
		{"embedded", "Bearer ${TEST_DUEWORK_KEY}", "Bearer secret-value"},
		{"no variables", "plain-key", "plain-key"},
		{"empty string", "", ""},
		{"unset variable", "${TEST_DUEWORK_UNSET}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.input); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Defaults.Provider != "anthropic" {
		t.Errorf("default provider = %q", cfg.Defaults.Provider)
	}
	if cfg.Defaults.PageBudget <= 0 {
		t.Error("page budget must be positive")
	}
	if _, ok := cfg.GetProvider("anthropic"); !ok {
		t.Error("anthropic provider missing from defaults")
	}

	enabled := cfg.EnabledProviders()
	if _, ok := enabled["anthropic"]; !ok {
		t.Error("anthropic should be enabled by default")
	}
	if _, ok := enabled["openai"]; ok {
		t.Error("openai should be disabled by default")
	}
}

func TestToRegistryConfigResolvesKeys(t *testing.T) {
	t.Setenv("TEST_DUEWORK_API_KEY", "resolved")

	cfg := &Config{
		Providers: map[string]ProviderCfg{
			"anthropic": {Type: "anthropic", APIKey: "${TEST_DUEWORK_API_KEY}", RPM: 50, Enabled: true},
		},
		Defaults: DefaultsCfg{Provider: "anthropic"},
	}

	rc := cfg.ToRegistryConfig()
	if rc.Default != "anthropic" {
		t.Errorf("default = %q", rc.Default)
	}
	if rc.Providers["anthropic"].APIKey != "resolved" {
		t.Errorf("api key = %q", rc.Providers["anthropic"].APIKey)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.HasPrefix(content, "# duework configuration") {
		t.Error("missing header comment")
	}
	for _, want := range []string{"providers:", "anthropic:", "database:", "worker:"} {
		if !strings.Contains(content, want) {
			t.Errorf("config missing %q", want)
		}
	}
}
