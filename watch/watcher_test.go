package watch

import (
	gocontext "context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fuwadog/patchpilot/context"
	"github.com/fuwadog/patchpilot/files"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newWatcher(t *testing.T) (*Watcher, *files.Manager) {
	t.Helper()
	cm := context.NewManager(100000, 5, nil)
	fm := files.NewManager(cm, 20, 10000, nil)
	w, err := New(fm)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })
	w.debounce = 20 * time.Millisecond
	return w, fm
}

func TestReloadOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	writeFile(t, path, "package main")

	w, fm := newWatcher(t)
	if err := fm.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := w.Track(path); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan string, 1)
	w.OnReload = func(p string) { reloaded <- p }

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, path, "package main\n\nfunc main() {}")

	select {
	case p := <-reloaded:
		if p != path {
			t.Errorf("reloaded %q, expected %q", p, path)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	content, ok := fm.Content(path)
	if !ok {
		t.Fatal("file no longer loaded")
	}
	if content != "package main\n\nfunc main() {}" {
		t.Errorf("stale content %q", content)
	}
}

func TestUnloadedFileIgnored(t *testing.T) {
	dir := t.TempDir()
	tracked := filepath.Join(dir, "a.go")
	other := filepath.Join(dir, "b.go")
	writeFile(t, tracked, "package a")
	writeFile(t, other, "package b")

	w, fm := newWatcher(t)
	if err := fm.Load(tracked); err != nil {
		t.Fatal(err)
	}
	if err := w.Track(tracked); err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan string, 1)
	w.OnReload = func(p string) { reloaded <- p }

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, other, "package b // changed")

	select {
	case p := <-reloaded:
		t.Fatalf("unexpected reload of %q", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUntrackStopsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.go")
	writeFile(t, path, "package a")

	w, fm := newWatcher(t)
	if err := fm.Load(path); err != nil {
		t.Fatal(err)
	}
	if err := w.Track(path); err != nil {
		t.Fatal(err)
	}
	w.Untrack(path)

	reloaded := make(chan string, 1)
	w.OnReload = func(p string) { reloaded <- p }

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, path, "package a // changed")

	select {
	case p := <-reloaded:
		t.Fatalf("unexpected reload of %q after untrack", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestTrackRefCountsDirectories(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")
	writeFile(t, a, "package a")
	writeFile(t, b, "package b")

	w, fm := newWatcher(t)
	for _, p := range []string{a, b} {
		if err := fm.Load(p); err != nil {
			t.Fatal(err)
		}
		if err := w.Track(p); err != nil {
			t.Fatal(err)
		}
	}

	// Untracking one file keeps the shared directory watched.
	w.Untrack(a)

	reloaded := make(chan string, 1)
	w.OnReload = func(p string) { reloaded <- p }

	ctx, cancel := gocontext.WithCancel(gocontext.Background())
	defer cancel()
	go w.Run(ctx)

	writeFile(t, b, "package b // changed")

	select {
	case p := <-reloaded:
		if p != b {
			t.Errorf("reloaded %q, expected %q", p, b)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
