// Package pipeline orchestrates a batch: acquire repositories into the raw
// store, run both extractors per repository, fold the results and persist
// the tables, triples and run manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/c360studio/repograph/consolidate"
	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/extractor/generative"
	"github.com/c360studio/repograph/extractor/rules"
	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/kg"
	"github.com/c360studio/repograph/storage"
	"golang.org/x/sync/errgroup"
)

// Skip stages recorded in the manifest.
const (
	StageAcquire    = "acquire"
	StageLoad       = "load"
	StageGenerative = "generative"
)

// Source resolves and acquires repositories. *github.Client satisfies it.
type Source interface {
	Resolve(ctx context.Context, explicit []string, query string, limit int, filter github.Filter) ([]github.Ref, error)
	FetchRepository(ctx context.Context, owner, name string) (*github.Metadata, string, error)
}

// Selection chooses the repositories of a batch.
type Selection struct {
	// Repositories is an explicit owner/name list; it bypasses search.
	Repositories []string
	Query        string
	Limit        int
	Filter       github.Filter
}

// Pipeline runs batches against one output directory.
type Pipeline struct {
	source     Source
	outDir     string
	raw        *storage.RawStore
	rules      *rules.Extractor
	generative TextExtractor
	exporter   *export.RDFExporter
	rdfFormat  export.Format
	publisher  GraphPublisher
	runs       RunRecorder
	recorder   Recorder
	workers    int
	logger     *slog.Logger
}

// New creates a pipeline writing below outDir. source may be nil for
// pipelines that only extract from the raw store.
func New(source Source, outDir string, ruleExtractor *rules.Extractor, opts ...Option) *Pipeline {
	if ruleExtractor == nil {
		ruleExtractor = rules.New()
	}
	p := &Pipeline{
		source:   source,
		outDir:   outDir,
		raw:      storage.NewRawStore(filepath.Join(outDir, "raw")),
		rules:    ruleExtractor,
		recorder: nopRecorder{},
		workers:  1,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RawStore returns the raw acquisition store.
func (p *Pipeline) RawStore() *storage.RawStore {
	return p.raw
}

// Acquire resolves the selection and stores every repository that could be
// fetched in the raw store. Repositories whose primary record fails are
// skipped and listed in the manifest.
func (p *Pipeline) Acquire(ctx context.Context, sel Selection) (*storage.Manifest, error) {
	return p.locked(ctx, "fetch", func(m *storage.Manifest) error {
		_, err := p.acquire(ctx, sel, m)
		return err
	})
}

// ExtractFromRaw extracts every repository in the raw store and persists the
// consolidated artifacts.
func (p *Pipeline) ExtractFromRaw(ctx context.Context) (*storage.Manifest, error) {
	return p.locked(ctx, "extract", func(m *storage.Manifest) error {
		ids, err := p.raw.List()
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return fmt.Errorf("raw store %s: %w", p.raw.Dir(), storage.ErrNotFound)
		}
		acc, err := p.extract(ctx, ids, m)
		if err != nil {
			return err
		}
		return p.persist(ctx, acc, m)
	})
}

// Run acquires, extracts and persists one batch.
func (p *Pipeline) Run(ctx context.Context, sel Selection) (*storage.Manifest, error) {
	return p.locked(ctx, "run", func(m *storage.Manifest) error {
		ids, err := p.acquire(ctx, sel, m)
		if err != nil {
			return err
		}
		acc, err := p.extract(ctx, ids, m)
		if err != nil {
			return err
		}
		return p.persist(ctx, acc, m)
	})
}

// locked holds the output-directory lock around fn and always writes the
// manifest, including the error that ended the run.
func (p *Pipeline) locked(ctx context.Context, command string, fn func(m *storage.Manifest) error) (*storage.Manifest, error) {
	lock, err := storage.AcquireLock(p.outDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			p.logger.Warn("Failed to release run lock", "error", err)
		}
	}()

	m := storage.NewManifest(command)
	m.Generative = p.generative != nil
	p.logger.Info("Run started", "run_id", m.RunID, "command", command, "workers", p.workers)

	runErr := fn(m)
	if runErr != nil {
		m.ErrorDetail = runErr.Error()
	}
	m.Finish()

	if err := storage.WriteManifest(p.outDir, m); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if p.runs != nil {
		if err := p.runs.Put(ctx, m); err != nil {
			p.logger.Warn("Failed to record run", "run_id", m.RunID, "error", err)
		}
	}

	if runErr != nil {
		p.logger.Error("Run failed", "run_id", m.RunID, "error", runErr)
		return m, runErr
	}
	p.logger.Info("Run complete",
		"run_id", m.RunID,
		"repositories", len(m.Repos),
		"triples", m.Triples,
		"skipped", len(m.Skipped),
		"duration", m.Duration())
	return m, nil
}

// acquired is the per-repository outcome of acquisition.
type acquired struct {
	id  string
	err error
}

func (p *Pipeline) acquire(ctx context.Context, sel Selection, m *storage.Manifest) ([]string, error) {
	if p.source == nil {
		return nil, errors.New("pipeline has no repository source")
	}
	refs, err := p.source.Resolve(ctx, sel.Repositories, sel.Query, sel.Limit, sel.Filter)
	if err != nil {
		return nil, fmt.Errorf("resolve repositories: %w", err)
	}
	p.logger.Info("Acquiring repositories", "count", len(refs))

	results := make([]acquired, len(refs))
	err = p.forEach(ctx, len(refs), func(ctx context.Context, i int) error {
		ref := refs[i]
		results[i].id = ref.ID()

		md, text, err := p.source.FetchRepository(ctx, ref.Owner, ref.Name)
		if err != nil {
			results[i].err = err
			return nil
		}
		if err := p.raw.Save(md, text); err != nil {
			return fmt.Errorf("save %s: %w", ref.ID(), err)
		}
		p.logger.Debug("Acquired repository", "repo", ref.ID(), "readme_bytes", len(text))
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			p.logger.Warn("Skipping repository", "repo", r.id, "stage", StageAcquire, "error", r.err)
			m.Skip(r.id, StageAcquire, r.err)
			p.recorder.RepositoryDone("skipped")
			continue
		}
		ids = append(ids, r.id)
	}
	m.Repos = ids
	return ids, nil
}

// extracted is the per-repository outcome of extraction.
type extracted struct {
	extraction *kg.Extraction
	loadErr    error
	genErr     error
}

func (p *Pipeline) extract(ctx context.Context, ids []string, m *storage.Manifest) (*consolidate.Accumulator, error) {
	results := make([]extracted, len(ids))
	err := p.forEach(ctx, len(ids), func(ctx context.Context, i int) error {
		results[i] = p.extractOne(ctx, ids[i])
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Fold in input order so parallel runs match sequential ones.
	acc := consolidate.New()
	repos := make([]string, 0, len(ids))
	for i, r := range results {
		id := ids[i]
		if r.loadErr != nil {
			p.logger.Warn("Skipping repository", "repo", id, "stage", StageLoad, "error", r.loadErr)
			m.Skip(id, StageLoad, r.loadErr)
			p.recorder.RepositoryDone("skipped")
			continue
		}
		if r.genErr != nil {
			m.Skip(id, StageGenerative, r.genErr)
		}
		acc.Add(r.extraction)
		repos = append(repos, id)
		p.recorder.RepositoryDone("ok")
	}
	m.Repos = repos

	st := acc.Stats()
	for src, n := range st.BySource {
		p.recorder.AddTriples(src, n)
	}
	return acc, nil
}

// extractOne loads one repository and runs both extractors over it. Only the
// README is submitted to the model. A generative failure keeps the rule
// triples.
func (p *Pipeline) extractOne(ctx context.Context, id string) extracted {
	md, text, err := p.raw.Load(id)
	if err != nil {
		return extracted{loadErr: err}
	}

	out := p.rules.Extract(md, text)
	if p.generative == nil {
		return extracted{extraction: out}
	}

	triples, err := p.generative.Extract(ctx, id, text)
	if err != nil {
		if errors.Is(err, generative.ErrMalformedOutput) {
			p.recorder.MalformedOutput()
		}
		p.logger.Warn("Generative extraction failed", "repo", id, "error", err)
		return extracted{extraction: out, genErr: err}
	}
	out.AddTriples(triples...)
	return extracted{extraction: out}
}

func (p *Pipeline) persist(ctx context.Context, acc *consolidate.Accumulator, m *storage.Manifest) error {
	triples := acc.Triples()

	if err := storage.WriteEntityTables(p.outDir, acc.Tables()); err != nil {
		return err
	}
	if err := storage.WriteTriples(p.outDir, triples); err != nil {
		return err
	}
	m.Artifacts = append(m.Artifacts, filepath.Join(storage.TriplesDir, storage.TriplesFile))
	for _, t := range kg.EntityTypes {
		rel, _ := filepath.Rel(p.outDir, storage.EntityTablePath(p.outDir, t))
		m.Artifacts = append(m.Artifacts, rel)
	}

	if p.exporter != nil {
		path, err := p.exporter.WriteFile(filepath.Join(p.outDir, storage.TriplesDir), triples, p.rdfFormat)
		if err != nil {
			return fmt.Errorf("export rdf: %w", err)
		}
		rel, _ := filepath.Rel(p.outDir, path)
		m.Artifacts = append(m.Artifacts, rel)
	}

	st := acc.Stats()
	m.Triples = st.Triples
	m.BySource = st.BySource
	m.Entities = st.Entities

	if p.publisher != nil {
		n, err := p.publisher.Publish(ctx, triples)
		if err != nil {
			// Files are already written; publication is best effort.
			p.logger.Warn("Graph publication incomplete", "published", n, "error", err)
		} else {
			p.logger.Info("Published repositories to graph", "count", n)
		}
	}
	return nil
}

// forEach calls fn for every index in [0, n) on at most p.workers
// goroutines. fn records per-item failures itself; a returned error aborts
// the remaining items.
func (p *Pipeline) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
