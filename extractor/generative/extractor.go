// Package generative extracts relations from free text with a chat-completion
// model. The model is prompted with a fixed few-shot template and its reply is
// read as JSON, tolerating the usual formatting noise around it.
package generative

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/repograph/kg"
	"github.com/c360studio/repograph/llm"
	"github.com/c360studio/repograph/model"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
)

// Defaults for extraction requests.
const (
	DefaultMaxChars  = 4000
	DefaultMaxTokens = 800
)

// Extractor turns repository text into candidate triples.
type Extractor struct {
	client      llm.Completer
	capability  model.Capability
	maxChars    int
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxChars sets how many characters of text are submitted.
func WithMaxChars(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxChars = n
		}
	}
}

// WithMaxTokens sets the completion length limit.
func WithMaxTokens(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(e *Extractor) {
		e.temperature = t
	}
}

// WithCapability selects the registry capability used for requests.
func WithCapability(c model.Capability) Option {
	return func(e *Extractor) {
		e.capability = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor backed by client.
func New(client llm.Completer, opts ...Option) *Extractor {
	e := &Extractor{
		client:     client,
		capability: model.CapabilityExtraction,
		maxChars:   DefaultMaxChars,
		maxTokens:  DefaultMaxTokens,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract submits text about repoID and returns the relations the model
// reported as triples with subject repoID. Blank text makes no request.
// A reply that cannot be parsed yields an error wrapping ErrMalformedOutput.
func (e *Extractor) Extract(ctx context.Context, repoID, text string) ([]kg.Triple, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	temp := e.temperature
	resp, err := e.client.Complete(ctx, llm.Request{
		Capability: e.capability.String(),
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: BuildPrompt(repoID, truncate(text, e.maxChars))},
		},
		Temperature: &temp,
		MaxTokens:   e.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generative extraction for %s: %w", repoID, err)
	}

	rels, err := ParseRelations(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("generative extraction for %s: %w", repoID, err)
	}

	triples := ToTriples(repoID, rels)
	e.logger.Debug("Generative extraction complete",
		"repo", repoID,
		"request_id", resp.RequestID,
		"relations", len(rels),
		"triples", len(triples))
	return triples, nil
}

// ToTriples converts parsed relations into triples. Predicates are aligned
// to the vocabulary; relations with an empty predicate or object are
// dropped. Missing confidences default to kg.DefaultGenerativeConfidence.
func ToTriples(repoID string, rels []Relation) []kg.Triple {
	triples := make([]kg.Triple, 0, len(rels))
	for _, r := range rels {
		predicate, _ := vocab.Align(r.Predicate)
		object := strings.TrimSpace(string(r.Object))
		if predicate == "" || object == "" {
			continue
		}

		confidence := kg.DefaultGenerativeConfidence
		if r.Confidence != nil {
			confidence = kg.ClampConfidence(float64(*r.Confidence))
		}

		triples = append(triples, kg.Triple{
			Subject:    repoID,
			Predicate:  predicate,
			Object:     object,
			Confidence: confidence,
			Source:     kg.SourceGenerative,
		})
	}
	return triples
}

// truncate keeps the first n characters of s.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
