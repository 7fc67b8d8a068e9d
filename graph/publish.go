// Package graph publishes candidate triples to the semstreams graph ingest
// stream, one message per repository.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/c360studio/repograph/kg"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
	"github.com/c360studio/semstreams/message"
)

// GraphIngestSubject is the subject graph ingestion listens on.
const GraphIngestSubject = "graph.ingest.entity"

// StreamPublisher is the part of the NATS client the publisher needs.
// *natsclient.Client satisfies it.
type StreamPublisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// Publisher sends repository payloads to graph ingestion.
type Publisher struct {
	nc      StreamPublisher
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSubject overrides the ingest subject.
func WithSubject(subject string) Option {
	return func(p *Publisher) {
		if subject != "" {
			p.subject = subject
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// NewPublisher creates a Publisher. A nil client yields a publisher whose
// Publish is a no-op.
func NewPublisher(nc StreamPublisher, opts ...Option) *Publisher {
	p := &Publisher{
		nc:      nc,
		subject: GraphIngestSubject,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish groups triples by subject and publishes one payload per
// repository, in order of first appearance. It returns how many payloads
// were published before any error.
func (p *Publisher) Publish(ctx context.Context, triples []kg.Triple) (int, error) {
	if p.nc == nil {
		return 0, nil
	}

	published := 0
	for _, payload := range BuildPayloads(triples, p.now()) {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return published, fmt.Errorf("marshal %s: %w", payload.ID, err)
		}
		if err := p.nc.PublishToStream(ctx, p.subject, data); err != nil {
			return published, fmt.Errorf("publish %s: %w", payload.ID, err)
		}
		published++
		p.logger.Debug("Published repository to graph",
			"entity_id", payload.ID,
			"triples", len(payload.TripleData))
	}
	return published, nil
}

// BuildPayloads converts candidate triples into graph payloads.
func BuildPayloads(triples []kg.Triple, now time.Time) []*RepositoryPayload {
	var order []string
	bySubject := make(map[string]*RepositoryPayload)

	for _, t := range triples {
		id := EntityID(t.Subject)
		payload, ok := bySubject[id]
		if !ok {
			payload = &RepositoryPayload{ID: id, UpdatedAt: now}
			bySubject[id] = payload
			order = append(order, id)
		}
		payload.TripleData = append(payload.TripleData, message.Triple{
			Subject:    id,
			Predicate:  vocab.DottedName(t.Predicate),
			Object:     objectValue(t),
			Source:     "repograph." + sourceName(t.Source),
			Timestamp:  now,
			Confidence: t.Confidence,
		})
	}

	out := make([]*RepositoryPayload, 0, len(order))
	for _, id := range order {
		out = append(out, bySubject[id])
	}
	return out
}

// EntityID returns the graph entity id of a repository identifier.
// Format: repograph.local.github.repo.repository.<id>
func EntityID(repoID string) string {
	return "repograph.local.github.repo.repository." + strings.ReplaceAll(repoID, ".", "-")
}

// objectValue types integer predicates; everything else stays a string.
func objectValue(t kg.Triple) any {
	if p, ok := vocab.Lookup(t.Predicate); ok && p.DataType == "int" {
		if n, err := strconv.ParseInt(t.Object, 10, 64); err == nil {
			return n
		}
	}
	return t.Object
}

func sourceName(s kg.Source) string {
	if s == "" {
		return "import"
	}
	return string(s)
}
