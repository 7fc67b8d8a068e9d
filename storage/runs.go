package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketRuns holds run manifests keyed by run id.
const BucketRuns = "REPOGRAPH_RUNS"

// RunStore mirrors run manifests into a JetStream key-value bucket so other
// services can follow batch progress.
type RunStore struct {
	runs jetstream.KeyValue
}

// NewRunStore opens the runs bucket, creating it when absent.
func NewRunStore(ctx context.Context, js jetstream.JetStream) (*RunStore, error) {
	runs, err := getOrCreateBucket(ctx, js, BucketRuns)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return &RunStore{runs: runs}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "repograph run manifests",
		History:     5,
	})
}

// Put stores or replaces a manifest.
func (s *RunStore) Put(ctx context.Context, m *Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if _, err := s.runs.Put(ctx, m.RunID, data); err != nil {
		return fmt.Errorf("store manifest %s: %w", m.RunID, err)
	}
	return nil
}

// Get retrieves a manifest by run id.
func (s *RunStore) Get(ctx context.Context, runID string) (*Manifest, error) {
	entry, err := s.runs.Get(ctx, runID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get manifest %s: %w", runID, err)
	}

	var m Manifest
	if err := json.Unmarshal(entry.Value(), &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest %s: %w", runID, err)
	}
	return &m, nil
}

// List returns every stored manifest ordered by start time.
func (s *RunStore) List(ctx context.Context) ([]*Manifest, error) {
	keys, err := s.runs.Keys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	manifests := make([]*Manifest, 0, len(keys))
	for _, key := range keys {
		m, err := s.Get(ctx, key)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].StartedAt.Before(manifests[j].StartedAt)
	})
	return manifests, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound)
}
