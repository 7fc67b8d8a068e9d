// Package storage persists pipeline artifacts: the raw acquisition store,
// entity and triple tables, the run manifest and the output-directory lock.
// Run manifests can additionally be mirrored to a NATS key-value bucket.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/c360studio/repograph/github"
)

// Raw-store file names.
const (
	MetadataFile = "metadata.json"
	ReadmeFile   = "README.md"
)

// RawStore keeps one directory per repository holding its metadata record
// and README text.
type RawStore struct {
	dir string
}

// NewRawStore creates a RawStore rooted at dir.
func NewRawStore(dir string) *RawStore {
	return &RawStore{dir: dir}
}

// Dir returns the root directory.
func (s *RawStore) Dir() string {
	return s.dir
}

// Path returns the directory of a repository id.
func (s *RawStore) Path(id string) string {
	return filepath.Join(s.dir, id)
}

// Save writes metadata.json and README.md for one repository. The README is
// written even when empty.
func (s *RawStore) Save(md *github.Metadata, readme string) error {
	dir := s.Path(md.ID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create raw directory: %w", err)
	}

	data, err := marshalMetadata(md)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(filepath.Join(dir, MetadataFile), data); err != nil {
		return fmt.Errorf("write %s: %w", MetadataFile, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, ReadmeFile), []byte(readme)); err != nil {
		return fmt.Errorf("write %s: %w", ReadmeFile, err)
	}
	return nil
}

// Load reads one repository. A missing README yields "".
func (s *RawStore) Load(id string) (*github.Metadata, string, error) {
	dir := s.Path(id)
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("repository %s: %w", id, ErrNotFound)
		}
		return nil, "", fmt.Errorf("read %s: %w", MetadataFile, err)
	}

	var md github.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, "", fmt.Errorf("parse %s for %s: %w", MetadataFile, id, err)
	}

	readme, err := os.ReadFile(filepath.Join(dir, ReadmeFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("read %s: %w", ReadmeFile, err)
	}
	return &md, string(readme), nil
}

// List returns the ids of stored repositories, sorted. Directories without
// a metadata record are skipped.
func (s *RawStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list raw store: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.dir, e.Name(), MetadataFile)); err != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}

// marshalMetadata renders the record with four-space indentation and
// without HTML escaping, keeping non-ASCII text readable.
func marshalMetadata(md *github.Metadata) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(md); err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// writeFileAtomic writes through a temp file and rename so readers never see
// a partial file.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
