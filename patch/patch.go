// Package patch applies model-generated file replacements safely:
// unified diff preview, confirmation, rotated backups, atomic writes.
package patch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pmezard/go-difflib/difflib"
)

// DefaultBackupCount is how many backups per file survive rotation.
const DefaultBackupCount = 5

// Options configures an Applier.
type Options struct {
	// Backup saves the original file before overwriting.
	Backup bool

	// DiffPreview writes a unified diff to Out before applying.
	DiffPreview bool

	// BackupDir is where backups are stored. Default "backups".
	BackupDir string

	// BackupCount bounds backups kept per file. Default 5.
	BackupCount int

	// Confirm is called with the target path before writing; returning
	// false aborts the apply. Nil applies without confirmation.
	Confirm func(path string) bool

	// Out receives the diff preview. Default os.Stdout.
	Out io.Writer
}

// Applier writes replacement file content to disk.
type Applier struct {
	opts Options
}

// NewApplier creates an Applier with the given options.
func NewApplier(opts Options) *Applier {
	if opts.BackupDir == "" {
		opts.BackupDir = "backups"
	}
	if opts.BackupCount <= 0 {
		opts.BackupCount = DefaultBackupCount
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Applier{opts: opts}
}

// Apply writes newContent to path. Returns whether the write happened
// (false without error means the user declined or the content is
// unchanged).
func (a *Applier) Apply(path, newContent string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("resolve path: %w", err)
	}

	old, exists, err := readIfExists(abs)
	if err != nil {
		return false, err
	}

	if a.opts.DiffPreview {
		diff, err := Diff(abs, old, newContent)
		if err != nil {
			return false, err
		}
		if diff == "" {
			fmt.Fprintln(a.opts.Out, "(no changes detected)")
			return false, nil
		}
		fmt.Fprint(a.opts.Out, diff)
	}

	if a.opts.Confirm != nil && !a.opts.Confirm(abs) {
		return false, nil
	}

	if exists && a.opts.Backup {
		backupPath, err := a.backup(abs)
		if err != nil {
			return false, fmt.Errorf("backup: %w", err)
		}
		fmt.Fprintf(a.opts.Out, "backup saved: %s\n", backupPath)
	}

	if err := atomicWrite(abs, newContent); err != nil {
		return false, err
	}
	return true, nil
}

// Diff renders a unified diff between old and new content for path.
// Returns "" when the contents are identical.
func Diff(path, old, new string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(old),
		B:        difflib.SplitLines(new),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("render diff: %w", err)
	}
	return text, nil
}

// backup copies path into the backup dir with a timestamp suffix and
// rotates out the oldest backups beyond the configured count.
func (a *Applier) backup(path string) (string, error) {
	if err := os.MkdirAll(a.opts.BackupDir, 0o755); err != nil {
		return "", err
	}

	base := filepath.Base(path)
	stamp := time.Now().Format("20060102_150405.000000000")
	backupPath := filepath.Join(a.opts.BackupDir, fmt.Sprintf("%s.%s.bak", base, stamp))

	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}

	a.rotate(base)
	return backupPath, nil
}

// rotate deletes the oldest backups for base beyond BackupCount. The
// timestamp in the name sorts lexically, so name order is age order.
func (a *Applier) rotate(base string) {
	entries, err := os.ReadDir(a.opts.BackupDir)
	if err != nil {
		return
	}
	var backups []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, base+".") && strings.HasSuffix(name, ".bak") {
			backups = append(backups, name)
		}
	}
	sort.Strings(backups)
	for len(backups) > a.opts.BackupCount {
		os.Remove(filepath.Join(a.opts.BackupDir, backups[0]))
		backups = backups[1:]
	}
}

// atomicWrite writes content via a temp file and rename in the target's
// directory, so a crash never leaves a half-written file.
func atomicWrite(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".patchpilot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// readIfExists reads path, reporting whether it existed.
func readIfExists(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), true, nil
}
