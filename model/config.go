package model

// RegistryConfig is the serialized form of a registry, embedded in the
// application config under "models".
type RegistryConfig struct {
	Capabilities map[string]*CapabilityConfig `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Endpoints    map[string]*EndpointConfig   `yaml:"endpoints,omitempty" json:"endpoints,omitempty"`
	Default      string                       `yaml:"default,omitempty" json:"default,omitempty"`
}

// IsEmpty reports whether the config declares no endpoints.
func (c *RegistryConfig) IsEmpty() bool {
	return c == nil || len(c.Endpoints) == 0
}

// FromConfig builds a registry from its serialized form. Capability names
// outside the known set are kept as given.
func FromConfig(cfg *RegistryConfig) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		caps[Capability(k)] = v
	}
	endpoints := make(map[string]*EndpointConfig, len(cfg.Endpoints))
	for k, v := range cfg.Endpoints {
		ep := *v
		endpoints[k] = &ep
	}

	r := NewRegistry(caps, endpoints)
	if cfg.Default != "" {
		r.SetDefault(cfg.Default)
	}
	return r
}

// ToConfig converts a registry to its serialized form. API keys are omitted
// by the field tags.
func (r *Registry) ToConfig() *RegistryConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	caps := make(map[string]*CapabilityConfig, len(r.capabilities))
	for k, v := range r.capabilities {
		caps[string(k)] = v
	}
	return &RegistryConfig{
		Capabilities: caps,
		Endpoints:    r.endpoints,
		Default:      r.defaultModel,
	}
}
