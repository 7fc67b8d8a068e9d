// Package rules implements deterministic relation extraction: a per-repository
// fan-out over structured metadata fields and regular-expression mining of
// description and README text.
package rules

import (
	"fmt"
	"log/slog"
	"strconv"
	"unicode/utf8"

	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/kg"
	"github.com/c360studio/repograph/readme"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
)

// DefaultMaxTextChars bounds the text mined per repository.
const DefaultMaxTextChars = 20000

// Extractor derives entities and triples from one repository record.
// It holds no per-repository state and is safe for concurrent use.
type Extractor struct {
	maxTextChars int
	patterns     []Pattern
	logger       *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxTextChars sets the mining bound in characters.
func WithMaxTextChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTextChars = n
		}
	}
}

// WithPatterns replaces the default pattern groups.
func WithPatterns(p []Pattern) Option {
	return func(e *Extractor) {
		e.patterns = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		maxTextChars: DefaultMaxTextChars,
		patterns:     DefaultPatterns(),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the entities and triples of one repository. Structured
// triples come first in field order, followed by pattern triples in pattern
// order.
func (e *Extractor) Extract(md *github.Metadata, text string) *kg.Extraction {
	id := md.ID()
	out := kg.NewExtraction(id)

	out.AddEntity(kg.EntityRepository, id)
	out.AddEntity(kg.EntityLicense, md.License)
	out.AddEntity(kg.EntityLanguage, md.Languages...)
	out.AddEntity(kg.EntityTag, md.Topics...)
	out.AddEntity(kg.EntityContributor, md.Contributors...)

	out.AddTriples(Structured(md)...)
	out.AddTriples(e.Mine(id, md.Description, text)...)

	e.logger.Debug("Rule extraction complete",
		"repo", id,
		"triples", len(out.Triples))
	return out
}

// Structured fans the metadata fields of one repository out into triples.
// It never looks beyond the given record.
func Structured(md *github.Metadata) []kg.Triple {
	id := md.ID()
	triples := make([]kg.Triple, 0, len(md.Languages)+len(md.Topics)+len(md.Contributors)+3)
	add := func(predicate, object string) {
		triples = append(triples, kg.Triple{
			Subject:    id,
			Predicate:  predicate,
			Object:     object,
			Confidence: kg.ConfidenceStructured,
			Source:     kg.SourceMetadata,
		})
	}

	for _, lang := range md.Languages {
		if lang != "" {
			add(vocab.UsesLanguage, lang)
		}
	}
	if md.License != "" {
		add(vocab.HasLicense, md.License)
	}
	for _, topic := range md.Topics {
		if topic != "" {
			add(vocab.HasTag, topic)
		}
	}
	add(vocab.HasStars, strconv.Itoa(max(md.Stars, 0)))

	url := md.URL
	if url == "" {
		url = fmt.Sprintf("https://github.com/%s/%s", md.Owner, md.Name)
	}
	add(vocab.HasURL, url)

	for _, login := range md.Contributors {
		if login != "" {
			add(vocab.HasContributor, login)
		}
	}
	return triples
}

// Mine applies the pattern groups to description and README text.
func (e *Extractor) Mine(id, description, text string) []kg.Triple {
	corpus := readme.StripHTML(description + "\n" + text)
	corpus = truncate(corpus, e.maxTextChars)

	var triples []kg.Triple
	for _, p := range e.patterns {
		for _, object := range p.Match(corpus) {
			triples = append(triples, kg.Triple{
				Subject:    id,
				Predicate:  p.Predicate,
				Object:     object,
				Confidence: p.Confidence,
				Source:     kg.SourcePattern,
			})
		}
	}
	return triples
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
