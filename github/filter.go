package github

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects repositories by glob patterns over "owner/name".
// An empty include list admits everything; exclude always wins.
type Filter struct {
	Include []string
	Exclude []string
}

// Validate checks every pattern is well formed.
func (f Filter) Validate() error {
	for _, p := range append(append([]string{}, f.Include...), f.Exclude...) {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("invalid repository pattern %q", p)
		}
	}
	return nil
}

// Allows reports whether ref passes the filter.
func (f Filter) Allows(ref Ref) bool {
	name := ref.FullName()
	for _, p := range f.Exclude {
		if ok, _ := doublestar.Match(p, name); ok {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, p := range f.Include {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Apply returns the refs that pass the filter, in order.
func (f Filter) Apply(refs []Ref) []Ref {
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if f.Allows(r) {
			out = append(out, r)
		}
	}
	return out
}
