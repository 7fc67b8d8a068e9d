// Package watch observes the raw acquisition store and reports repositories
// whose metadata record or README changed, so they can be re-extracted.
package watch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	// eventChannelBuffer is the size of the change channel.
	eventChannelBuffer = 256

	// DefaultDebounce is used when no debounce delay is configured.
	DefaultDebounce = 500 * time.Millisecond
)

// Operation is the kind of change observed for a repository.
type Operation string

// Change operations.
const (
	OpCreate Operation = "create"
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// Change reports one repository directory whose content changed.
type Change struct {
	// RepoID is the {owner}_{name} directory name.
	RepoID string

	// Operation is the coalesced change kind.
	Operation Operation
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets how long changes are collected before being reported.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithFiles overrides the file names that trigger a change. Defaults to
// metadata.json and README.md.
func WithFiles(names ...string) Option {
	return func(w *Watcher) {
		w.files = make(map[string]bool, len(names))
		for _, n := range names {
			w.files[n] = true
		}
	}
}

// Watcher reports debounced per-repository changes under a raw directory.
// Each repository is hashed over its watched files so rewrites with identical
// content are not reported.
type Watcher struct {
	rawDir   string
	debounce time.Duration
	files    map[string]bool
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]bool

	hashMu sync.Mutex
	hashes map[string]string

	changes chan Change
	dropped atomic.Int64
}

// New creates a watcher over rawDir. Start must be called to begin watching.
func New(rawDir string, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		rawDir:   rawDir,
		debounce: DefaultDebounce,
		files:    map[string]bool{"metadata.json": true, "README.md": true},
		watcher:  fsw,
		logger:   slog.Default(),
		pending:  make(map[string]bool),
		hashes:   make(map[string]string),
		changes:  make(chan Change, eventChannelBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Changes returns the change channel. It is closed when the watcher stops.
func (w *Watcher) Changes() <-chan Change {
	return w.changes
}

// Start watches rawDir and every repository directory below it. Existing
// repositories are hashed first so only later edits are reported.
func (w *Watcher) Start(ctx context.Context) error {
	if err := os.MkdirAll(w.rawDir, 0o755); err != nil {
		return err
	}
	if err := w.watcher.Add(w.rawDir); err != nil {
		return err
	}

	entries, err := os.ReadDir(w.rawDir)
	if err != nil {
		return err
	}
	known := 0
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		w.addRepoDir(filepath.Join(w.rawDir, e.Name()))
		if h, ok := w.hashRepo(e.Name()); ok {
			w.setHash(e.Name(), h)
			known++
		}
	}

	go w.loop(ctx)

	w.logger.Info("Raw store watcher started",
		"raw_dir", w.rawDir,
		"debounce", w.debounce,
		"repositories", known)
	return nil
}

// Stop closes the underlying fsnotify watcher. The change channel is closed
// by the event loop when it exits.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}

// Dropped returns the number of changes dropped because the channel was full.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

func (w *Watcher) addRepoDir(path string) {
	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("Failed to watch repository directory", "path", path, "error", err)
		return
	}
	w.logger.Debug("Watching repository directory", "path", path)
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.changes)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

// handle maps a filesystem event onto a pending repository id.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.rawDir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	repo := parts[0]
	if repo == "." || strings.HasPrefix(repo, ".") {
		return
	}

	switch len(parts) {
	case 1:
		// A repository directory appeared or went away.
		if event.Has(fsnotify.Create) {
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				w.addRepoDir(event.Name)
				w.markPending(repo)
			}
			return
		}
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.markPending(repo)
		}
	case 2:
		if !w.files[parts[1]] {
			return
		}
		w.markPending(repo)
	}
}

func (w *Watcher) markPending(repo string) {
	w.pendingMu.Lock()
	w.pending[repo] = true
	w.pendingMu.Unlock()
}

// flush reports every pending repository whose content hash changed.
func (w *Watcher) flush(ctx context.Context) {
	w.pendingMu.Lock()
	if len(w.pending) == 0 {
		w.pendingMu.Unlock()
		return
	}
	repos := w.pending
	w.pending = make(map[string]bool)
	w.pendingMu.Unlock()

	for repo := range repos {
		if ctx.Err() != nil {
			return
		}

		oldHash, hadHash := w.getHash(repo)
		newHash, exists := w.hashRepo(repo)

		switch {
		case !exists && hadHash:
			w.deleteHash(repo)
			w.send(Change{RepoID: repo, Operation: OpDelete})
		case !exists:
		case hadHash && oldHash == newHash:
		case hadHash:
			w.setHash(repo, newHash)
			w.send(Change{RepoID: repo, Operation: OpModify})
		default:
			w.setHash(repo, newHash)
			w.send(Change{RepoID: repo, Operation: OpCreate})
		}
	}
}

// hashRepo digests the watched files of a repository. It reports false when
// the directory has no metadata record yet.
func (w *Watcher) hashRepo(repo string) (string, bool) {
	dir := filepath.Join(w.rawDir, repo)
	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
		return "", false
	}

	names := make([]string, 0, len(w.files))
	for n := range w.files {
		names = append(names, n)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			w.logger.Warn("Failed to read file for hash check", "repo", repo, "file", n, "error", err)
			return "", false
		}
		h.Write([]byte(n))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), true
}

func (w *Watcher) getHash(repo string) (string, bool) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	h, ok := w.hashes[repo]
	return h, ok
}

func (w *Watcher) setHash(repo, hash string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	w.hashes[repo] = hash
}

func (w *Watcher) deleteHash(repo string) {
	w.hashMu.Lock()
	defer w.hashMu.Unlock()
	delete(w.hashes, repo)
}

func (w *Watcher) send(c Change) {
	select {
	case w.changes <- c:
		w.logger.Debug("Repository changed", "repo", c.RepoID, "op", c.Operation)
	default:
		dropped := w.dropped.Add(1)
		w.logger.Warn("Change channel full, dropping change",
			"repo", c.RepoID,
			"total_dropped", dropped)
	}
}
