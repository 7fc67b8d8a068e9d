// Package config provides configuration loading and management for repograph.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/model"
	ssconfig "github.com/c360studio/semstreams/config"
	"gopkg.in/yaml.v3"
)

// Config represents the complete repograph configuration
type Config struct {
	GitHub     GitHubConfig          `yaml:"github"`
	Fetch      FetchConfig           `yaml:"fetch"`
	Rules      RulesConfig           `yaml:"rules"`
	Generative GenerativeConfig      `yaml:"generative"`
	Models     *model.RegistryConfig `yaml:"models,omitempty"`
	Output     OutputConfig          `yaml:"output"`
	Pipeline   PipelineConfig        `yaml:"pipeline"`
	Watch      WatchConfig           `yaml:"watch"`
	NATS       NATSConfig            `yaml:"nats"`
	Metrics    MetricsConfig         `yaml:"metrics"`
	Logging    LoggingConfig         `yaml:"logging"`
	Secrets    SecretsConfig         `yaml:"secrets"`
}

// GitHubConfig selects the repositories to acquire
type GitHubConfig struct {
	// BaseURL is the REST API root (default: https://api.github.com)
	BaseURL string `yaml:"base_url"`
	// Query is the repository search query
	Query string `yaml:"query"`
	// Limit caps the number of search results (0 = no cap)
	Limit int `yaml:"limit"`
	// Repositories is an explicit owner/name list that bypasses search
	Repositories []string `yaml:"repositories,omitempty"`
	// Include and Exclude are doublestar globs over owner/name
	Include []string `yaml:"include,omitempty"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// FetchConfig configures the resilient HTTP fetcher
type FetchConfig struct {
	// MaxRetries is the total number of attempts per request
	MaxRetries int `yaml:"max_retries"`
	// Timeout bounds one attempt
	Timeout time.Duration `yaml:"timeout"`
	// BackoffBase is the first backoff delay, doubled per attempt
	BackoffBase time.Duration `yaml:"backoff_base"`
}

// RulesConfig configures the rule extractor
type RulesConfig struct {
	// MaxTextChars bounds the text mined with patterns
	MaxTextChars int `yaml:"max_text_chars"`
}

// GenerativeConfig configures the generative extractor
type GenerativeConfig struct {
	Enabled     bool    `yaml:"enabled"`
	MaxChars    int     `yaml:"max_chars"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// Capability is the model registry capability used for requests
	Capability string `yaml:"capability"`
}

// OutputConfig configures the artifact layout
type OutputConfig struct {
	// Dir is the output root holding raw/, entities/, triples/
	Dir string `yaml:"dir"`
	// RDFFormat additionally writes the triples as turtle, ntriples or jsonld
	RDFFormat string `yaml:"rdf_format,omitempty"`
	// Profile selects the RDF export profile (minimal, standard)
	Profile string `yaml:"profile"`
	// MinConfidence drops triples below this score from RDF output
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
}

// PipelineConfig configures orchestration
type PipelineConfig struct {
	// Workers is the number of repositories processed concurrently
	Workers int `yaml:"workers"`
}

// WatchConfig configures the raw store watcher
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// NATSConfig configures optional graph publishing
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	// Subject overrides the graph ingest subject
	Subject string `yaml:"subject,omitempty"`
	// RecordRuns mirrors run manifests into a key-value bucket
	RecordRuns bool `yaml:"record_runs"`
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	// Addr is the listen address (empty = disabled)
	Addr string `yaml:"addr,omitempty"`
}

// LoggingConfig configures slog output
type LoggingConfig struct {
	// Level is debug, info, warn or error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
	// File enables rotated file output in addition to stderr
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days,omitempty"`
}

// SecretsConfig locates the credential files
type SecretsConfig struct {
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{
			BaseURL: github.DefaultBaseURL,
			Query:   github.DefaultSearchQuery,
			Limit:   100,
		},
		Fetch: FetchConfig{
			MaxRetries:  3,
			Timeout:     10 * time.Second,
			BackoffBase: time.Second,
		},
		Rules: RulesConfig{
			MaxTextChars: 20000,
		},
		Generative: GenerativeConfig{
			Enabled:     true,
			MaxChars:    4000,
			MaxTokens:   800,
			Temperature: 0,
			Capability:  string(model.CapabilityExtraction),
		},
		Output: OutputConfig{
			Dir:     "data",
			Profile: string(export.ProfileMinimal),
		},
		Pipeline: PipelineConfig{
			Workers: 1,
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Secrets: SecretsConfig{
			Dir: "secrets",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.GitHub.Limit < 0 {
		errs = append(errs, fmt.Errorf("github.limit must not be negative"))
	}
	for _, r := range c.GitHub.Repositories {
		if _, err := github.ParseRef(r); err != nil {
			errs = append(errs, fmt.Errorf("github.repositories: %w", err))
		}
	}
	if err := c.Filter().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("github filter: %w", err))
	}
	if c.Fetch.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be at least 1"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive"))
	}
	if c.Fetch.BackoffBase < 0 {
		errs = append(errs, fmt.Errorf("fetch.backoff_base must not be negative"))
	}
	if c.Rules.MaxTextChars < 1 {
		errs = append(errs, fmt.Errorf("rules.max_text_chars must be positive"))
	}
	if c.Generative.MaxChars < 1 {
		errs = append(errs, fmt.Errorf("generative.max_chars must be positive"))
	}
	if c.Generative.MaxTokens < 1 {
		errs = append(errs, fmt.Errorf("generative.max_tokens must be positive"))
	}
	if c.Generative.Temperature < 0 || c.Generative.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generative.temperature must be between 0 and 2"))
	}
	if c.Output.Dir == "" {
		errs = append(errs, fmt.Errorf("output.dir is required"))
	}
	if c.Output.RDFFormat != "" {
		if _, err := export.ParseFormat(c.Output.RDFFormat); err != nil {
			errs = append(errs, fmt.Errorf("output.rdf_format: %w", err))
		}
	}
	if _, ok := export.Profiles[export.Profile(c.Output.Profile)]; !ok {
		errs = append(errs, fmt.Errorf("output.profile %q is not a known profile", c.Output.Profile))
	}
	if c.Output.MinConfidence < 0 || c.Output.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("output.min_confidence must be between 0 and 1"))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be at least 1"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, fmt.Errorf("nats.url is required when nats is enabled"))
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json"))
	}
	if !c.Models.IsEmpty() {
		if err := model.FromConfig(c.Models).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("models: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Filter returns the repository filter built from the include and exclude globs.
func (c *Config) Filter() github.Filter {
	return github.Filter{Include: c.GitHub.Include, Exclude: c.GitHub.Exclude}
}

// RawDir returns the raw acquisition directory below the output root.
func (c *Config) RawDir() string {
	return filepath.Join(c.Output.Dir, "raw")
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", s)
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, path); err != nil {
		return nil, err
	}
	return config, nil
}

// applyFile decodes path over config. Keys absent from the file keep their
// current values, which is how configuration layers stack. ${VAR} and
// ${VAR:-default} references are expanded before parsing.
func applyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	expanded := ssconfig.ExpandEnvWithDefaults(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values). Booleans can only be switched on by a merge; use a file
// layer to switch one off.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// GitHub
	if other.GitHub.BaseURL != "" {
		c.GitHub.BaseURL = other.GitHub.BaseURL
	}
	if other.GitHub.Query != "" {
		c.GitHub.Query = other.GitHub.Query
	}
	if other.GitHub.Limit != 0 {
		c.GitHub.Limit = other.GitHub.Limit
	}
	if len(other.GitHub.Repositories) > 0 {
		c.GitHub.Repositories = other.GitHub.Repositories
	}
	if len(other.GitHub.Include) > 0 {
		c.GitHub.Include = other.GitHub.Include
	}
	if len(other.GitHub.Exclude) > 0 {
		c.GitHub.Exclude = other.GitHub.Exclude
	}

	// Fetch
	if other.Fetch.MaxRetries != 0 {
		c.Fetch.MaxRetries = other.Fetch.MaxRetries
	}
	if other.Fetch.Timeout != 0 {
		c.Fetch.Timeout = other.Fetch.Timeout
	}
	if other.Fetch.BackoffBase != 0 {
		c.Fetch.BackoffBase = other.Fetch.BackoffBase
	}

	// Extractors
	if other.Rules.MaxTextChars != 0 {
		c.Rules.MaxTextChars = other.Rules.MaxTextChars
	}
	if other.Generative.Enabled {
		c.Generative.Enabled = true
	}
	if other.Generative.MaxChars != 0 {
		c.Generative.MaxChars = other.Generative.MaxChars
	}
	if other.Generative.MaxTokens != 0 {
		c.Generative.MaxTokens = other.Generative.MaxTokens
	}
	if other.Generative.Temperature != 0 {
		c.Generative.Temperature = other.Generative.Temperature
	}
	if other.Generative.Capability != "" {
		c.Generative.Capability = other.Generative.Capability
	}
	if !other.Models.IsEmpty() {
		c.Models = other.Models
	}

	// Output
	if other.Output.Dir != "" {
		c.Output.Dir = other.Output.Dir
	}
	if other.Output.RDFFormat != "" {
		c.Output.RDFFormat = other.Output.RDFFormat
	}
	if other.Output.Profile != "" {
		c.Output.Profile = other.Output.Profile
	}
	if other.Output.MinConfidence != 0 {
		c.Output.MinConfidence = other.Output.MinConfidence
	}

	if other.Pipeline.Workers != 0 {
		c.Pipeline.Workers = other.Pipeline.Workers
	}
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}

	// NATS
	if other.NATS.Enabled {
		c.NATS.Enabled = true
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Subject != "" {
		c.NATS.Subject = other.NATS.Subject
	}
	if other.NATS.RecordRuns {
		c.NATS.RecordRuns = true
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}

	// Logging
	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.Format != "" {
		c.Logging.Format = other.Logging.Format
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}

	if other.Secrets.Dir != "" {
		c.Secrets.Dir = other.Secrets.Dir
	}
}
