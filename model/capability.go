// Package model provides capability-based model selection. Callers ask for a
// capability such as "extraction" and the registry resolves it to an ordered
// chain of configured endpoints.
package model

// Capability names what a completion is used for.
type Capability string

const (
	// CapabilityExtraction is relation extraction from repository text.
	CapabilityExtraction Capability = "extraction"

	// CapabilityFast is for short, cheap completions such as connectivity checks.
	CapabilityFast Capability = "fast"
)

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityExtraction, CapabilityFast:
		return true
	}
	return false
}

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// ParseCapability converts a string to a Capability, returning empty for
// unknown values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
