package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/repograph/model"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("expected 3 attempts, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("expected 10s timeout, got %v", cfg.Fetch.Timeout)
	}
	if cfg.Rules.MaxTextChars != 20000 {
		t.Errorf("expected rules.max_text_chars 20000, got %d", cfg.Rules.MaxTextChars)
	}
	if cfg.Generative.MaxChars != 4000 || cfg.Generative.MaxTokens != 800 {
		t.Errorf("unexpected generative bounds %d/%d", cfg.Generative.MaxChars, cfg.Generative.MaxTokens)
	}
	if !cfg.Generative.Enabled {
		t.Error("expected generative extraction enabled by default")
	}
	if cfg.Pipeline.Workers != 1 {
		t.Errorf("expected sequential pipeline by default, got %d workers", cfg.Pipeline.Workers)
	}
	if cfg.Output.Dir != "data" {
		t.Errorf("expected output dir data, got %s", cfg.Output.Dir)
	}
	if cfg.NATS.Enabled {
		t.Error("expected NATS disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero retries",
			modify:  func(c *Config) { c.Fetch.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "bad repository reference",
			modify:  func(c *Config) { c.GitHub.Repositories = []string{"no-slash"} },
			wantErr: true,
		},
		{
			name:    "bad include glob",
			modify:  func(c *Config) { c.GitHub.Include = []string{"acme/["} },
			wantErr: true,
		},
		{
			name:    "unknown rdf format",
			modify:  func(c *Config) { c.Output.RDFFormat = "rdfxml" },
			wantErr: true,
		},
		{
			name:    "rdf format by extension",
			modify:  func(c *Config) { c.Output.RDFFormat = "ttl" },
			wantErr: false,
		},
		{
			name:    "unknown profile",
			modify:  func(c *Config) { c.Output.Profile = "bfo" },
			wantErr: true,
		},
		{
			name:    "no workers",
			modify:  func(c *Config) { c.Pipeline.Workers = 0 },
			wantErr: true,
		},
		{
			name:    "nats enabled without url",
			modify:  func(c *Config) { c.NATS.Enabled = true; c.NATS.URL = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: true,
		},
		{
			name: "models referencing unknown endpoint",
			modify: func(c *Config) {
				c.Models = &model.RegistryConfig{
					Capabilities: map[string]*model.CapabilityConfig{
						"extraction": {Preferred: []string{"missing"}},
					},
					Endpoints: map[string]*model.EndpointConfig{
						"local": {Provider: "ollama", Model: "qwen2.5"},
					},
				}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	// Create temp file with config
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
github:
  query: "language:go stars:>1000"
  limit: 25
  exclude:
    - "archived/**"
fetch:
  timeout: 30s
generative:
  enabled: false
  max_chars: 2000
output:
  dir: "/tmp/graph"
  rdf_format: turtle
pipeline:
  workers: 4
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.GitHub.Query != "language:go stars:>1000" {
		t.Errorf("unexpected query %q", cfg.GitHub.Query)
	}
	if cfg.GitHub.Limit != 25 {
		t.Errorf("expected limit 25, got %d", cfg.GitHub.Limit)
	}
	if cfg.Fetch.Timeout != 30*time.Second {
		t.Errorf("expected timeout 30s, got %v", cfg.Fetch.Timeout)
	}
	// Unset keys keep their defaults
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("expected default retries kept, got %d", cfg.Fetch.MaxRetries)
	}
	if cfg.Generative.Enabled {
		t.Error("expected generative disabled by file")
	}
	if cfg.Generative.MaxTokens != 800 {
		t.Errorf("expected default max_tokens kept, got %d", cfg.Generative.MaxTokens)
	}
	if cfg.Output.Dir != "/tmp/graph" || cfg.RawDir() != filepath.Join("/tmp/graph", "raw") {
		t.Errorf("unexpected output dir %s", cfg.Output.Dir)
	}
	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Pipeline.Workers)
	}
	if f := cfg.Filter(); len(f.Exclude) != 1 {
		t.Errorf("expected one exclude pattern, got %v", f.Exclude)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestConfigMerge(t *testing.T) {
	base := DefaultConfig()
	override := &Config{
		GitHub: GitHubConfig{
			Repositories: []string{"acme/foo"},
		},
		Output: OutputConfig{
			Dir: "/override",
		},
		NATS: NATSConfig{
			Enabled: true,
		},
	}

	base.Merge(override)

	if len(base.GitHub.Repositories) != 1 || base.GitHub.Repositories[0] != "acme/foo" {
		t.Errorf("expected explicit repositories, got %v", base.GitHub.Repositories)
	}
	// Query should remain from base since override didn't set it
	if base.GitHub.Query != DefaultConfig().GitHub.Query {
		t.Errorf("expected query to remain default, got %s", base.GitHub.Query)
	}
	if base.Output.Dir != "/override" {
		t.Errorf("expected output dir /override, got %s", base.Output.Dir)
	}
	if !base.NATS.Enabled || base.NATS.URL == "" {
		t.Errorf("expected NATS enabled with default url, got %+v", base.NATS)
	}

	base.Merge(nil)
}

func TestConfigSaveToFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "subdir", "config.yaml")

	cfg := DefaultConfig()
	cfg.GitHub.Query = "topic:knowledge-graph"

	if err := cfg.SaveToFile(configPath); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("config file was not created")
	}

	// Load and verify
	loaded, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("failed to load saved config: %v", err)
	}
	if loaded.GitHub.Query != "topic:knowledge-graph" {
		t.Errorf("expected saved query, got %s", loaded.GitHub.Query)
	}
	if loaded.Fetch.Timeout != cfg.Fetch.Timeout {
		t.Errorf("timeout did not survive save: %v", loaded.Fetch.Timeout)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"debug", "INFO", "", "warn", "warning", "error"} {
		if _, err := ParseLevel(s); err != nil {
			t.Errorf("ParseLevel(%q) error = %v", s, err)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLoadFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("REPOGRAPH_TEST_NATS", "nats://graph:4222")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
nats:
  url: "${REPOGRAPH_TEST_NATS}"
output:
  dir: "${REPOGRAPH_TEST_UNSET:-fallback}"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.NATS.URL != "nats://graph:4222" {
		t.Errorf("expected expanded NATS url, got %s", cfg.NATS.URL)
	}
	if cfg.Output.Dir != "fallback" {
		t.Errorf("expected default for unset var, got %s", cfg.Output.Dir)
	}
}
