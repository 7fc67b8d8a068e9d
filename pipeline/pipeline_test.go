package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360studio/repograph/export"
	"github.com/c360studio/repograph/extractor/generative"
	"github.com/c360studio/repograph/extractor/rules"
	"github.com/c360studio/repograph/fetch"
	"github.com/c360studio/repograph/github"
	"github.com/c360studio/repograph/github/githubtest"
	"github.com/c360studio/repograph/kg"
	"github.com/c360studio/repograph/llm"
	"github.com/c360studio/repograph/llm/llmtest"
	_ "github.com/c360studio/repograph/llm/providers"
	"github.com/c360studio/repograph/model"
	"github.com/c360studio/repograph/storage"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

func acmeFoo() githubtest.Repo {
	return githubtest.Repo{
		Owner:     "acme",
		Name:      "foo",
		Stars:     5,
		License:   "MIT",
		Topics:    []string{"ml"},
		Languages: map[string]int64{"Python": 100},
		HTMLURL:   "https://x",
	}
}

func newSource(server *githubtest.Server) *github.Client {
	return github.NewClient(fetch.NewFetcher(fetch.WithBackoffBase(time.Millisecond)), "tok", github.WithBaseURL(server.URL))
}

func TestRun_EndToEnd(t *testing.T) {
	server := githubtest.NewServer(acmeFoo())
	defer server.Close()

	outDir := t.TempDir()
	p := New(newSource(server), outDir, rules.New())

	m, err := p.Run(context.Background(), Selection{Repositories: []string{"acme/foo"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_foo"}, m.Repos)
	assert.Empty(t, m.Skipped)
	assert.False(t, m.Generative)

	triples, err := storage.ReadTriples(storage.TriplesPath(outDir))
	require.NoError(t, err)

	// The CSV carries no source column.
	want := []kg.Triple{
		{Subject: "acme_foo", Predicate: vocab.UsesLanguage, Object: "Python", Confidence: 1},
		{Subject: "acme_foo", Predicate: vocab.HasLicense, Object: "MIT", Confidence: 1},
		{Subject: "acme_foo", Predicate: vocab.HasTag, Object: "ml", Confidence: 1},
		{Subject: "acme_foo", Predicate: vocab.HasStars, Object: "5", Confidence: 1},
		{Subject: "acme_foo", Predicate: vocab.HasURL, Object: "https://x", Confidence: 1},
	}
	if diff := cmp.Diff(want, triples); diff != "" {
		t.Errorf("triples mismatch (-want +got):\n%s", diff)
	}

	licenses, err := storage.ReadEntityTable(outDir, kg.EntityLicense)
	require.NoError(t, err)
	assert.Equal(t, []string{"MIT"}, licenses)

	repos, err := storage.ReadEntityTable(outDir, kg.EntityRepository)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_foo"}, repos)

	written, err := storage.ReadManifest(outDir)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, written.RunID)
	assert.Equal(t, 5, written.Triples)
	assert.Equal(t, 5, written.BySource[string(kg.SourceMetadata)])
}

func TestRun_SkipsFailedRepository(t *testing.T) {
	broken := githubtest.Repo{Owner: "acme", Name: "broken", Status: http.StatusNotFound}
	server := githubtest.NewServer(acmeFoo(), broken)
	defer server.Close()

	outDir := t.TempDir()
	p := New(newSource(server), outDir, rules.New())

	m, err := p.Run(context.Background(), Selection{Repositories: []string{"acme/foo", "acme/broken"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"acme_foo"}, m.Repos)
	require.Len(t, m.Skipped, 1)
	assert.Equal(t, "acme_broken", m.Skipped[0].Repository)
	assert.Equal(t, StageAcquire, m.Skipped[0].Stage)

	repos, err := storage.ReadEntityTable(outDir, kg.EntityRepository)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_foo"}, repos)
}

func TestRun_WithGenerative(t *testing.T) {
	repo := acmeFoo()
	repo.Readme = "Foo is developed by Acme Labs."
	server := githubtest.NewServer(repo)
	defer server.Close()

	chat := llmtest.NewServer("Here is the result:\n```json\n[{\"predicate\":\"developedBy\",\"object\":\"Acme Labs\",\"confidence\":0.9}]\n```")
	defer chat.Close()
	client := llm.NewClient(model.NewDefaultRegistry(chat.URL, "sk-test"))

	outDir := t.TempDir()
	p := New(newSource(server), outDir, rules.New(),
		WithGenerative(generative.New(client)),
		WithRDF(export.NewRDFExporter(export.ProfileMinimal), export.FormatNTriples),
	)

	m, err := p.Run(context.Background(), Selection{Repositories: []string{"acme/foo"}})
	require.NoError(t, err)
	assert.True(t, m.Generative)
	require.Equal(t, 1, chat.Calls())
	prompt := chat.Requests()[0].Messages
	assert.Contains(t, prompt[len(prompt)-1].Content, "developed by Acme Labs")
	assert.Equal(t, 1, m.BySource[string(kg.SourceGenerative)])
	assert.Contains(t, m.Artifacts, "triples/candidate_triples.nt")

	triples, err := storage.ReadTriples(storage.TriplesPath(outDir))
	require.NoError(t, err)
	last := triples[len(triples)-1]
	assert.Equal(t, vocab.DevelopedBy, last.Predicate)
	assert.Equal(t, "Acme Labs", last.Object)
	assert.Equal(t, 0.9, last.Confidence)
}

func TestExtract_MalformedOutputKeepsRuleTriples(t *testing.T) {
	outDir := t.TempDir()
	seedRaw(t, outDir, "acme", "foo", "Foo is written in Go.")

	rec := &countingRecorder{}
	gen := &stubExtractor{err: fmt.Errorf("generative extraction for acme_foo: %w", generative.ErrMalformedOutput)}
	p := New(nil, outDir, rules.New(), WithGenerative(gen), WithRecorder(rec))

	m, err := p.ExtractFromRaw(context.Background())
	require.NoError(t, err)

	require.Len(t, m.Skipped, 1)
	assert.Equal(t, StageGenerative, m.Skipped[0].Stage)
	assert.Equal(t, []string{"acme_foo"}, m.Repos)
	assert.Positive(t, m.BySource[string(kg.SourceMetadata)])
	assert.Equal(t, 1, rec.malformed)
}

func TestExtractFromRaw_Empty(t *testing.T) {
	p := New(nil, t.TempDir(), rules.New())
	m, err := p.ExtractFromRaw(context.Background())
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.NotNil(t, m)
	assert.NotEmpty(t, m.ErrorDetail)
}

func TestParallelMatchesSequential(t *testing.T) {
	var repos []githubtest.Repo
	var names []string
	for i := 0; i < 12; i++ {
		name := fmt.Sprintf("repo%02d", i)
		repos = append(repos, githubtest.Repo{
			Owner:        "acme",
			Name:         name,
			Stars:        i,
			License:      []string{"MIT", "Apache-2.0", "BSD-3-Clause"}[i%3],
			Topics:       []string{"t" + name},
			Languages:    map[string]int64{"Go": 10, "Rust": int64(i)},
			Contributors: []string{"alice", "user" + name},
			Readme:       "Written in Go. Uses Kubernetes.",
		})
		names = append(names, "acme/"+name)
	}
	server := githubtest.NewServer(repos...)
	defer server.Close()

	run := func(workers int) ([]byte, map[kg.EntityType][]string) {
		outDir := t.TempDir()
		p := New(newSource(server), outDir, rules.New(), WithWorkers(workers))
		_, err := p.Run(context.Background(), Selection{Repositories: names})
		require.NoError(t, err)

		triples, err := storage.ReadTriples(storage.TriplesPath(outDir))
		require.NoError(t, err)
		data, err := json.Marshal(triples)
		require.NoError(t, err)

		tables := make(map[kg.EntityType][]string)
		for _, et := range kg.EntityTypes {
			names, err := storage.ReadEntityTable(outDir, et)
			require.NoError(t, err)
			tables[et] = names
		}
		return data, tables
	}

	seqTriples, seqTables := run(1)
	parTriples, parTables := run(4)

	assert.JSONEq(t, string(seqTriples), string(parTriples))
	if diff := cmp.Diff(seqTables, parTables); diff != "" {
		t.Errorf("entity tables differ (-seq +par):\n%s", diff)
	}
}

func TestRun_LockHeld(t *testing.T) {
	outDir := t.TempDir()
	lock, err := storage.AcquireLock(outDir)
	require.NoError(t, err)
	defer lock.Release()

	p := New(nil, outDir, rules.New())
	_, err = p.ExtractFromRaw(context.Background())
	assert.ErrorIs(t, err, storage.ErrLocked)
}

func TestRun_PublishesAndRecords(t *testing.T) {
	server := githubtest.NewServer(acmeFoo())
	defer server.Close()

	pub := &stubPublisher{}
	runs := &stubRuns{}
	p := New(newSource(server), t.TempDir(), rules.New(), WithPublisher(pub), WithRunRecorder(runs))

	m, err := p.Run(context.Background(), Selection{Repositories: []string{"acme/foo"}})
	require.NoError(t, err)
	assert.Len(t, pub.triples, 5)
	require.Len(t, runs.manifests, 1)
	assert.Equal(t, m.RunID, runs.manifests[0].RunID)
}

func TestRun_PublishFailureIsNotFatal(t *testing.T) {
	server := githubtest.NewServer(acmeFoo())
	defer server.Close()

	p := New(newSource(server), t.TempDir(), rules.New(), WithPublisher(&stubPublisher{err: errors.New("nats down")}))
	_, err := p.Run(context.Background(), Selection{Repositories: []string{"acme/foo"}})
	require.NoError(t, err)
}

func TestRun_CancelledContext(t *testing.T) {
	server := githubtest.NewServer(acmeFoo())
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(newSource(server), t.TempDir(), rules.New())
	_, err := p.Run(ctx, Selection{Repositories: []string{"acme/foo"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "canceled"), err.Error())
}

// seedRaw writes one repository into the raw store of outDir.
func seedRaw(t *testing.T, outDir, owner, name, readme string) {
	t.Helper()
	md := &github.Metadata{
		Owner:     owner,
		Name:      name,
		Stars:     5,
		License:   "MIT",
		URL:       "https://x",
		Topics:    []string{"ml"},
		Languages: []string{"Python"},
	}
	require.NoError(t, New(nil, outDir, nil).RawStore().Save(md, readme))
}

type stubExtractor struct {
	triples []kg.Triple
	err     error
}

func (s *stubExtractor) Extract(context.Context, string, string) ([]kg.Triple, error) {
	return s.triples, s.err
}

type countingRecorder struct {
	mu        sync.Mutex
	malformed int
}

func (r *countingRecorder) AddTriples(string, int) {}
func (r *countingRecorder) RepositoryDone(string)  {}
func (r *countingRecorder) MalformedOutput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.malformed++
}

type stubPublisher struct {
	triples []kg.Triple
	err     error
}

func (s *stubPublisher) Publish(_ context.Context, triples []kg.Triple) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.triples = append(s.triples, triples...)
	return 1, nil
}

type stubRuns struct {
	manifests []*storage.Manifest
}

func (s *stubRuns) Put(_ context.Context, m *storage.Manifest) error {
	s.manifests = append(s.manifests, m)
	return nil
}
