package pipeline

import (
	"context"
	"log/slog"

	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/kg"
	"github.com/c360studio/repograph/storage"
)

// TextExtractor produces triples about one repository from free text.
// *generative.Extractor satisfies it.
type TextExtractor interface {
	Extract(ctx context.Context, repoID, text string) ([]kg.Triple, error)
}

// GraphPublisher forwards the consolidated triples to a graph service.
// *graph.Publisher satisfies it.
type GraphPublisher interface {
	Publish(ctx context.Context, triples []kg.Triple) (int, error)
}

// RunRecorder mirrors finished manifests. *storage.RunStore satisfies it.
type RunRecorder interface {
	Put(ctx context.Context, m *storage.Manifest) error
}

// Recorder receives pipeline counters. *metrics.Metrics satisfies it.
type Recorder interface {
	AddTriples(source string, n int)
	RepositoryDone(outcome string)
	MalformedOutput()
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers sets how many repositories are processed concurrently.
// Values below 1 mean sequential processing.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithGenerative enables the generative extractor.
func WithGenerative(x TextExtractor) Option {
	return func(p *Pipeline) {
		p.generative = x
	}
}

// WithRDF additionally writes the triples in format through exporter.
func WithRDF(exporter *export.RDFExporter, format export.Format) Option {
	return func(p *Pipeline) {
		p.exporter = exporter
		p.rdfFormat = format
	}
}

// WithPublisher publishes the consolidated triples after persistence.
func WithPublisher(pub GraphPublisher) Option {
	return func(p *Pipeline) {
		p.publisher = pub
	}
}

// WithRunRecorder mirrors the manifest of every run.
func WithRunRecorder(r RunRecorder) Option {
	return func(p *Pipeline) {
		p.runs = r
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

type nopRecorder struct{}

func (nopRecorder) AddTriples(string, int) {}
func (nopRecorder) RepositoryDone(string)  {}
func (nopRecorder) MalformedOutput()       {}
