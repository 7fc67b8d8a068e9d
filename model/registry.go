package model

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DefaultEndpoint is the name of the endpoint built from the LLM secrets.
const DefaultEndpoint = "deepseek"

// Registry maps capabilities to endpoints with fallback chains and tracks
// endpoint health.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	defaultModel string
	health       *healthState
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Preferred lists endpoints in order of preference.
	Preferred []string `yaml:"preferred" json:"preferred"`

	// Fallback lists endpoints tried after every preferred one failed.
	Fallback []string `yaml:"fallback,omitempty" json:"fallback,omitempty"`
}

// EndpointConfig defines one chat-completion endpoint.
type EndpointConfig struct {
	// Provider selects the wire format (openai, ollama, anthropic).
	Provider string `yaml:"provider" json:"provider"`

	// URL is the API base URL. Empty uses the provider default.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Model is the model identifier sent to the provider.
	Model string `yaml:"model" json:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`

	// APIKey authenticates requests. It is loaded from the secrets directory
	// and never serialized.
	APIKey string `yaml:"-" json:"-"`
}

// NewRegistry creates a registry. The default model is the first preferred
// endpoint of the extraction capability, if any.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	if caps == nil {
		caps = make(map[Capability]*CapabilityConfig)
	}
	if endpoints == nil {
		endpoints = make(map[string]*EndpointConfig)
	}
	r := &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		health:       newHealthState(DefaultHealthConfig()),
	}
	if cfg, ok := caps[CapabilityExtraction]; ok && len(cfg.Preferred) > 0 {
		r.defaultModel = cfg.Preferred[0]
	}
	return r
}

// NewDefaultRegistry creates a registry with a single DeepSeek endpoint
// serving every capability. Its URL and key come from the secrets files.
func NewDefaultRegistry(url, apiKey string) *Registry {
	return NewRegistry(
		map[Capability]*CapabilityConfig{
			CapabilityExtraction: {Preferred: []string{DefaultEndpoint}},
			CapabilityFast:       {Preferred: []string{DefaultEndpoint}},
		},
		map[string]*EndpointConfig{
			DefaultEndpoint: {
				Provider:  "deepseek",
				URL:       url,
				Model:     "deepseek-chat",
				MaxTokens: 64000,
				APIKey:    apiKey,
			},
		},
	)
}

// Resolve returns the preferred endpoint for a capability.
func (r *Registry) Resolve(c Capability) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok && len(cfg.Preferred) > 0 {
		return cfg.Preferred[0]
	}
	return r.defaultModel
}

// GetFallbackChain returns every endpoint for a capability in order of
// preference. Unknown capabilities resolve to the default model.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if cfg, ok := r.capabilities[c]; ok {
		chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
		chain = append(chain, cfg.Preferred...)
		chain = append(chain, cfg.Fallback...)
		return chain
	}
	if r.defaultModel == "" {
		return nil
	}
	return []string{r.defaultModel}
}

// GetEndpoint returns the endpoint configuration for a name, or nil.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// SetCapability updates or adds a capability configuration.
func (r *Registry) SetCapability(c Capability, cfg *CapabilityConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c] = cfg
}

// SetEndpoint updates or adds an endpoint configuration.
func (r *Registry) SetEndpoint(name string, cfg *EndpointConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[name] = cfg
}

// SetDefault sets the endpoint used for unknown capabilities.
func (r *Registry) SetDefault(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultModel = name
}

// SetAPIKey sets the key of every endpoint that has none.
func (r *Registry) SetAPIKey(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ep := range r.endpoints {
		if ep.APIKey == "" {
			ep.APIKey = key
		}
	}
}

// ListEndpoints returns all endpoint names, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that every referenced endpoint exists and has a provider
// and model.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	caps := make([]string, 0, len(r.capabilities))
	for c := range r.capabilities {
		caps = append(caps, string(c))
	}
	sort.Strings(caps)

	for _, c := range caps {
		cfg := r.capabilities[Capability(c)]
		for _, name := range cfg.Preferred {
			if _, ok := r.endpoints[name]; !ok {
				errs = append(errs, fmt.Errorf("capability %s: preferred model %q not found", c, name))
			}
		}
		for _, name := range cfg.Fallback {
			if _, ok := r.endpoints[name]; !ok {
				errs = append(errs, fmt.Errorf("capability %s: fallback model %q not found", c, name))
			}
		}
	}
	if r.defaultModel != "" {
		if _, ok := r.endpoints[r.defaultModel]; !ok {
			errs = append(errs, fmt.Errorf("default model %q not found", r.defaultModel))
		}
	}
	for _, name := range sortedKeys(r.endpoints) {
		ep := r.endpoints[name]
		if ep.Provider == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: provider is required", name))
		}
		if ep.Model == "" {
			errs = append(errs, fmt.Errorf("endpoint %s: model is required", name))
		}
	}
	return errors.Join(errs...)
}

func sortedKeys(m map[string]*EndpointConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
