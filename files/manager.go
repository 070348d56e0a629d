// Package files discovers, loads, and tracks project files in the
// session context. Format handling is delegated to extract; context
// injection and eviction policy to context.Manager.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fuwadog/patchpilot/context"
	"github.com/fuwadog/patchpilot/extract"
	"github.com/fuwadog/patchpilot/truncate"
)

// ErrNoRoom reports that a file was read successfully but could not stay
// in context: pinned content leaves too little unpinned budget, so the
// new entry was evicted the moment it was added.
var ErrNoRoom = errors.New("no room in context for file")

// DefaultExtensions are the glob patterns used for folder discovery when
// the caller does not supply any.
var DefaultExtensions = []string{
	"*.go", "*.py", "*.ts", "*.js", "*.tsx", "*.jsx",
	"*.css", "*.md", "*.txt", "*.json", "*.yaml", "*.yml",
}

// Manager loads files into the session context and keeps the raw,
// untruncated content around for patch generation.
type Manager struct {
	mu    sync.Mutex
	ctx   *context.Manager
	store map[string]string // abs path -> raw content

	maxFiles      int
	maxFileTokens int
	extensions    []string
	trunc         *truncate.Truncator
}

// NewManager creates a file manager bound to the given session context.
// maxFileTokens bounds a single file's contribution; oversized files are
// middle-truncated before entering context. extensions may be nil to use
// DefaultExtensions.
func NewManager(ctx *context.Manager, maxFiles, maxFileTokens int, extensions []string) *Manager {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Manager{
		ctx:           ctx,
		store:         make(map[string]string),
		maxFiles:      maxFiles,
		maxFileTokens: maxFileTokens,
		extensions:    extensions,
		trunc:         truncate.New(truncate.FromMiddle),
	}
}

// Load extracts a single file and inserts it into the session context.
// Re-loading a path replaces its content and touches it to most-recent.
func (m *Manager) Load(path string) error {
	id, content, err := extract.File(path)
	if err != nil {
		return err
	}

	budgeted, truncated := m.trunc.Truncate(content, m.maxFileTokens)
	if truncated {
		slog.Debug("file truncated to fit per-file budget",
			"path", id, "budget_tokens", m.maxFileTokens)
	}

	m.mu.Lock()
	m.store[id] = content
	m.mu.Unlock()

	evicted := m.ctx.Add(id, budgeted)
	m.dropRaw(evicted)
	for _, victim := range evicted {
		slog.Info("evicted from context to restore token budget", "path", victim)
	}
	for _, victim := range evicted {
		if victim == id {
			return fmt.Errorf("%s: %w", id, ErrNoRoom)
		}
	}
	return nil
}

// LoadFolder discovers up to the max-files cap of matching files under
// folder and loads each. Returns the number loaded and per-file errors.
func (m *Manager) LoadFolder(folder string, extensions []string) (int, []error) {
	if len(extensions) == 0 {
		extensions = m.extensions
	}
	discovered, err := m.discover(folder, extensions)
	if err != nil {
		return 0, []error{err}
	}

	var errs []error
	loaded := 0
	for _, path := range discovered {
		if err := m.Load(path); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		loaded++
	}
	return loaded, errs
}

// Unload removes a file from the context and the raw store. Pinned files
// are skipped unless force is set. Returns true if the file was removed.
func (m *Manager) Unload(path string, force bool) bool {
	abs := absolute(path)
	if !m.ctx.Remove(abs, force) {
		return false
	}
	m.mu.Lock()
	delete(m.store, abs)
	m.mu.Unlock()
	return true
}

// UnloadAll removes all loaded files. When keepPinned is set, pinned
// files survive. Returns the number unloaded.
func (m *Manager) UnloadAll(keepPinned bool) int {
	count := 0
	for _, p := range m.Paths() {
		if m.Unload(p, !keepPinned) {
			count++
		}
	}
	return count
}

// UnloadFolder removes all loaded files under folder (pinned files are
// skipped). Returns the number unloaded.
func (m *Manager) UnloadFolder(folder string) int {
	prefix := absolute(folder) + string(filepath.Separator)
	count := 0
	for _, p := range m.Paths() {
		if strings.HasPrefix(p, prefix) && m.Unload(p, false) {
			count++
		}
	}
	return count
}

// UnloadPattern removes loaded files whose base name or full path matches
// the glob pattern (pinned files are skipped). Returns the number unloaded.
func (m *Manager) UnloadPattern(pattern string) int {
	count := 0
	for _, p := range m.Paths() {
		baseMatch, _ := filepath.Match(pattern, filepath.Base(p))
		fullMatch, _ := filepath.Match(pattern, p)
		if (baseMatch || fullMatch) && m.Unload(p, false) {
			count++
		}
	}
	return count
}

// Content returns the raw, untruncated content of a loaded file.
func (m *Manager) Content(path string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.store[absolute(path)]
	return content, ok
}

// Paths returns the loaded file paths in sorted order.
func (m *Manager) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.store))
	for p := range m.store {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// IsLoaded reports whether path is currently loaded.
func (m *Manager) IsLoaded(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[absolute(path)]
	return ok
}

// Reset drops the raw store. The session context is reset by its owner.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]string)
}

// discover walks folder recursively collecting files whose base name
// matches any extension pattern, capped at maxFiles.
func (m *Manager) discover(folder string, extensions []string) ([]string, error) {
	root := absolute(folder)
	seen := make(map[string]bool)
	var found []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories like .git.
			if name := d.Name(); name != "." && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		base := d.Name()
		for _, pattern := range extensions {
			if ok, _ := filepath.Match(pattern, base); ok {
				if !seen[path] {
					seen[path] = true
					found = append(found, path)
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", root, err)
	}

	sort.Strings(found)
	if len(found) > m.maxFiles {
		found = found[:m.maxFiles]
	}
	return found, nil
}

// dropRaw removes raw content for paths evicted from the context.
func (m *Manager) dropRaw(paths []string) {
	if len(paths) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.store, p)
	}
}

// absolute resolves path, falling back to the input on error.
func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
