// Package kg defines the candidate knowledge-graph data model shared by the
// extractors and the consolidator: triples, entity types and entity sets.
package kg

import (
	"fmt"
	"strconv"
)

// Source identifies which extractor produced a triple.
type Source string

// Triple sources.
const (
	// SourceMetadata marks triples derived from structured metadata fields.
	SourceMetadata Source = "rule.metadata"

	// SourcePattern marks triples mined from free text with regular expressions.
	SourcePattern Source = "rule.pattern"

	// SourceGenerative marks triples produced by the language-model extractor.
	SourceGenerative Source = "generative"
)

// Confidence levels for rule-derived triples.
const (
	// ConfidenceStructured is assigned to triples read directly from metadata.
	ConfidenceStructured = 1.0

	// DefaultGenerativeConfidence is used when the model omits a confidence.
	DefaultGenerativeConfidence = 0.8
)

// Triple is one candidate relation about a repository.
// Subject is always a repository identifier of the form {owner}_{name}.
type Triple struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// String renders the triple for logs.
func (t Triple) String() string {
	return fmt.Sprintf("(%s, %s, %q, %.2f)", t.Subject, t.Predicate, t.Object, t.Confidence)
}

// Score returns the confidence formatted for tabular output.
func (t Triple) Score() string {
	return strconv.FormatFloat(t.Confidence, 'f', -1, 64)
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// RepositoryID builds the repository identifier used as triple subject and
// as the raw-data directory name.
func RepositoryID(owner, name string) string {
	return owner + "_" + name
}

// Extraction is the thread-confined output of processing one repository.
// Extractors fill it; the consolidator folds it into the batch accumulator.
type Extraction struct {
	RepoID   string
	Entities map[EntityType][]string
	Triples  []Triple
}

// NewExtraction creates an empty extraction for a repository.
func NewExtraction(repoID string) *Extraction {
	return &Extraction{
		RepoID:   repoID,
		Entities: make(map[EntityType][]string),
	}
}

// AddEntity records a candidate entity name. Empty names are ignored.
func (e *Extraction) AddEntity(t EntityType, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		e.Entities[t] = append(e.Entities[t], name)
	}
}

// AddTriples appends triples in order.
func (e *Extraction) AddTriples(triples ...Triple) {
	e.Triples = append(e.Triples, triples...)
}
