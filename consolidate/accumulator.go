// Package consolidate folds per-repository extractions into batch-wide
// entity tables and one candidate-triple collection.
package consolidate

import (
	"sync"

	"github.com/c360studio/repograph/kg"
)

// Accumulator owns the entity tables and triple list of a batch. Tables only
// grow; triples are appended in arrival order and never deduplicated.
// It is safe for concurrent use, though the pipeline folds from one goroutine.
type Accumulator struct {
	mu       sync.Mutex
	tables   map[kg.EntityType]*kg.EntitySet
	triples  []kg.Triple
	repos    []string
	bySource map[kg.Source]int
}

// New creates an empty Accumulator.
func New() *Accumulator {
	a := &Accumulator{
		tables:   make(map[kg.EntityType]*kg.EntitySet, len(kg.EntityTypes)),
		bySource: make(map[kg.Source]int),
	}
	for _, t := range kg.EntityTypes {
		a.tables[t] = kg.NewEntitySet()
	}
	return a
}

// Add folds one extraction. A nil extraction is ignored.
func (a *Accumulator) Add(e *kg.Extraction) {
	if e == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for t, names := range e.Entities {
		a.table(t).Add(names...)
	}
	a.appendTriples(e.Triples)
	if e.RepoID != "" {
		a.repos = append(a.repos, e.RepoID)
	}
}

// Merge folds everything other has accumulated into a. Triples of other
// follow those already in a.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other == a {
		return
	}
	other.mu.Lock()
	tables := make(map[kg.EntityType][]string, len(other.tables))
	for t, s := range other.tables {
		tables[t] = s.Sorted()
	}
	triples := append([]kg.Triple(nil), other.triples...)
	repos := append([]string(nil), other.repos...)
	other.mu.Unlock()

	a.mu.Lock()
	defer a.mu.Unlock()
	for t, names := range tables {
		a.table(t).Add(names...)
	}
	a.appendTriples(triples)
	a.repos = append(a.repos, repos...)
}

// Fold builds an Accumulator from extractions in order.
func Fold(extractions ...*kg.Extraction) *Accumulator {
	a := New()
	for _, e := range extractions {
		a.Add(e)
	}
	return a
}

// Table returns the sorted names of one entity table.
func (a *Accumulator) Table(t kg.EntityType) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.table(t).Sorted()
}

// Tables returns every entity table, sorted.
func (a *Accumulator) Tables() map[kg.EntityType][]string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[kg.EntityType][]string, len(a.tables))
	for t, s := range a.tables {
		out[t] = s.Sorted()
	}
	return out
}

// Triples returns a copy of the accumulated triples in arrival order.
func (a *Accumulator) Triples() []kg.Triple {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kg.Triple(nil), a.triples...)
}

// Repositories returns the ids of folded extractions in arrival order.
func (a *Accumulator) Repositories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.repos...)
}

// Stats summarizes the accumulator.
type Stats struct {
	Repositories int            `json:"repositories"`
	Triples      int            `json:"triples"`
	BySource     map[string]int `json:"triples_by_source"`
	Entities     map[string]int `json:"entities"`
}

// Stats returns counts for logs and the run manifest.
func (a *Accumulator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{
		Repositories: len(a.repos),
		Triples:      len(a.triples),
		BySource:     make(map[string]int, len(a.bySource)),
		Entities:     make(map[string]int, len(a.tables)),
	}
	for src, n := range a.bySource {
		st.BySource[string(src)] = n
	}
	for t, s := range a.tables {
		st.Entities[t.TableName()] = s.Len()
	}
	return st
}

// table returns the set for t, creating it for types outside kg.EntityTypes.
// Callers hold a.mu.
func (a *Accumulator) table(t kg.EntityType) *kg.EntitySet {
	s, ok := a.tables[t]
	if !ok {
		s = kg.NewEntitySet()
		a.tables[t] = s
	}
	return s
}

func (a *Accumulator) appendTriples(triples []kg.Triple) {
	a.triples = append(a.triples, triples...)
	for _, tr := range triples {
		a.bySource[tr.Source]++
	}
}
