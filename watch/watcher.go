// Package watch keeps loaded file context fresh by reloading files when
// they change on disk.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fuwadog/patchpilot/files"
)

// DefaultDebounce is how long a file must stay quiet after a write before
// it is reloaded. Editors often emit several events per save.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads files tracked by a files.Manager when they change.
// Directories are watched rather than individual files, which survives
// the rename-and-replace save strategy most editors use.
type Watcher struct {
	fm       *files.Manager
	fsw      *fsnotify.Watcher
	debounce time.Duration

	// OnReload, if set, is called after a file has been reloaded.
	OnReload func(path string)

	mu     sync.Mutex
	dirs   map[string]int // watched dir -> tracked file count
	timers map[string]*time.Timer
	closed bool
}

// New creates a watcher over the given file manager.
func New(fm *files.Manager) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fm:       fm,
		fsw:      fsw,
		debounce: DefaultDebounce,
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Track starts watching the directory containing path. The path should
// already be loaded in the file manager.
func (w *Watcher) Track(path string) error {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dirs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	return nil
}

// Untrack stops watching for path. The containing directory stays
// watched while other tracked files live in it.
func (w *Watcher) Untrack(path string) {
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}
	if w.dirs[dir] == 0 {
		return
	}
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		w.fsw.Remove(dir)
	}
}

// Run processes filesystem events until ctx is cancelled or the watcher
// is closed. Call it from its own goroutine.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := absolute(event.Name)
			if !w.fm.IsLoaded(path) {
				continue
			}
			w.scheduleReload(path)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("file watch error", "error", err)
		}
	}
}

// Close stops all watches and pending reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

// scheduleReload arms (or re-arms) the debounce timer for path.
func (w *Watcher) scheduleReload(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		w.reload(path)
	})
}

// reload re-reads path into the file manager.
func (w *Watcher) reload(path string) {
	if !w.fm.IsLoaded(path) {
		return
	}
	if err := w.fm.Load(path); err != nil {
		slog.Warn("reload after change failed", "path", path, "error", err)
		return
	}
	slog.Debug("file reloaded after change", "path", path)
	if w.OnReload != nil {
		w.OnReload(path)
	}
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
