package kg

import (
	"fmt"
	"sort"
)

// EntityType scopes an entity name.
type EntityType string

// Entity types with their own tables.
const (
	EntityRepository  EntityType = "repository"
	EntityLicense     EntityType = "license"
	EntityLanguage    EntityType = "language"
	EntityTag         EntityType = "tag"
	EntityContributor EntityType = "contributor"
)

// EntityTypes lists every entity type in table output order.
var EntityTypes = []EntityType{
	EntityRepository,
	EntityLicense,
	EntityLanguage,
	EntityTag,
	EntityContributor,
}

// tableNames maps entity types to their plural table names.
var tableNames = map[EntityType]string{
	EntityRepository:  "repositories",
	EntityLicense:     "licenses",
	EntityLanguage:    "languages",
	EntityTag:         "tags",
	EntityContributor: "contributors",
}

// TableName returns the plural table name, e.g. "licenses".
func (t EntityType) TableName() string {
	if name, ok := tableNames[t]; ok {
		return name
	}
	return string(t) + "s"
}

// ParseEntityType converts a string to an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	for _, t := range EntityTypes {
		if string(t) == s || t.TableName() == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown entity type: %s", s)
}

// EntitySet is an append-only set of entity names of one type.
// The zero value is not usable; use NewEntitySet.
type EntitySet struct {
	names map[string]struct{}
}

// NewEntitySet creates an empty set.
func NewEntitySet() *EntitySet {
	return &EntitySet{names: make(map[string]struct{})}
}

// Add inserts non-empty names. It reports how many were new.
func (s *EntitySet) Add(names ...string) int {
	added := 0
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, ok := s.names[name]; ok {
			continue
		}
		s.names[name] = struct{}{}
		added++
	}
	return added
}

// Contains reports whether name is in the set.
func (s *EntitySet) Contains(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Len returns the number of names.
func (s *EntitySet) Len() int {
	return len(s.names)
}

// Sorted returns the names in lexical order.
func (s *EntitySet) Sorted() []string {
	out := make([]string, 0, len(s.names))
	for name := range s.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Union adds every name of other into s.
func (s *EntitySet) Union(other *EntitySet) {
	if other == nil {
		return
	}
	for name := range other.names {
		s.names[name] = struct{}{}
	}
}
