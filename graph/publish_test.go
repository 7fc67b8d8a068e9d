package graph

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/c360studio/repograph/kg"
	vocab "github.com/c360studio/repograph/vocabulary/repograph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	subjects []string
	messages [][]byte
	failAt   int
}

func (f *fakeStream) PublishToStream(_ context.Context, subject string, data []byte) error {
	if f.failAt > 0 && len(f.messages)+1 == f.failAt {
		return errors.New("stream unavailable")
	}
	f.subjects = append(f.subjects, subject)
	f.messages = append(f.messages, data)
	return nil
}

func sampleTriples() []kg.Triple {
	return []kg.Triple{
		{Subject: "acme_foo", Predicate: vocab.HasStars, Object: "42", Confidence: 1, Source: kg.SourceMetadata},
		{Subject: "acme_foo", Predicate: vocab.UsesLanguage, Object: "Go", Confidence: 1, Source: kg.SourceMetadata},
		{Subject: "socketio_socket.io", Predicate: vocab.WrittenIn, Object: "TypeScript", Confidence: 0.8, Source: kg.SourcePattern},
		{Subject: "acme_foo", Predicate: "fundedBy", Object: "ACME", Confidence: 0.5, Source: kg.SourceGenerative},
	}
}

func TestBuildPayloads(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	payloads := BuildPayloads(sampleTriples(), now)
	require.Len(t, payloads, 2)

	foo := payloads[0]
	assert.Equal(t, "repograph.local.github.repo.repository.acme_foo", foo.ID)
	require.Len(t, foo.Triples(), 3)
	assert.Equal(t, "repo.popularity.stars", foo.TripleData[0].Predicate)
	assert.Equal(t, int64(42), foo.TripleData[0].Object)
	assert.Equal(t, "repo.language.uses", foo.TripleData[1].Predicate)
	assert.Equal(t, "Go", foo.TripleData[1].Object)
	assert.Equal(t, "repo.extra.fundedby", foo.TripleData[2].Predicate)
	assert.Equal(t, "repograph.generative", foo.TripleData[2].Source)
	assert.Equal(t, now, foo.TripleData[0].Timestamp)
	require.NoError(t, foo.Validate())

	assert.Equal(t, "repograph.local.github.repo.repository.socketio_socket-io", payloads[1].ID)
}

func TestPublisher_Publish(t *testing.T) {
	stream := &fakeStream{}
	p := NewPublisher(stream)

	n, err := p.Publish(context.Background(), sampleTriples())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{GraphIngestSubject, GraphIngestSubject}, stream.subjects)

	var decoded RepositoryPayload
	require.NoError(t, json.Unmarshal(stream.messages[0], &decoded))
	assert.Equal(t, EntityID("acme_foo"), decoded.EntityID())
	assert.Len(t, decoded.Triples(), 3)
}

func TestPublisher_PublishError(t *testing.T) {
	stream := &fakeStream{failAt: 2}
	p := NewPublisher(stream, WithSubject("graph.ingest.test"))

	n, err := p.Publish(context.Background(), sampleTriples())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"graph.ingest.test"}, stream.subjects)
}

func TestPublisher_NilClientIsNoop(t *testing.T) {
	n, err := NewPublisher(nil).Publish(context.Background(), sampleTriples())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRepositoryPayload_Validate(t *testing.T) {
	assert.Error(t, (&RepositoryPayload{}).Validate())
	assert.Error(t, (&RepositoryPayload{ID: "x"}).Validate())
	assert.Equal(t, RepositoryType, (&RepositoryPayload{}).Schema())
}
