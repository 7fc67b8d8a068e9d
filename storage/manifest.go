package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Skip records a repository left out of a run.
type Skip struct {
	Repository string `json:"repository"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// Manifest summarizes one pipeline run.
type Manifest struct {
	RunID       string         `json:"run_id"`
	Command     string         `json:"command"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at,omitempty"`
	Generative  bool           `json:"generative"`
	Repos       []string       `json:"repositories"`
	Triples     int            `json:"triples"`
	BySource    map[string]int `json:"triples_by_source"`
	Entities    map[string]int `json:"entities"`
	Skipped     []Skip         `json:"skipped,omitempty"`
	Artifacts   []string       `json:"artifacts,omitempty"`
	ErrorDetail string         `json:"error,omitempty"`
}

// NewManifest starts a manifest with a fresh run id.
func NewManifest(command string) *Manifest {
	return &Manifest{
		RunID:     uuid.New().String(),
		Command:   command,
		StartedAt: time.Now().UTC(),
		BySource:  make(map[string]int),
		Entities:  make(map[string]int),
	}
}

// Skip appends a skipped repository.
func (m *Manifest) Skip(repo, stage string, err error) {
	m.Skipped = append(m.Skipped, Skip{Repository: repo, Stage: stage, Reason: err.Error()})
}

// Finish stamps the end time.
func (m *Manifest) Finish() {
	m.FinishedAt = time.Now().UTC()
}

// Duration returns the run duration, or the time elapsed so far.
func (m *Manifest) Duration() time.Duration {
	if m.FinishedAt.IsZero() {
		return time.Since(m.StartedAt)
	}
	return m.FinishedAt.Sub(m.StartedAt)
}

// WriteManifest writes run.json into outDir.
func WriteManifest(outDir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(outDir, ManifestFile), append(data, '\n')); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads run.json from outDir.
func ReadManifest(outDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(outDir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}
