// Package flatten collapses a directory subtree into a single directory.
//
// Every regular file below the current root is moved into the target root,
// overwriting any file of the same name, and every descendant directory is
// removed once emptied. Entries are visited in lexicographic order
// (os.ReadDir sorts by name), depth first, so when two files share a name
// the one visited last wins. Failures are logged and collected; a single
// bad entry never aborts the walk.
package flatten

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/savewarden/internal/platform"
)

// Result summarizes a flatten pass.
type Result struct {
	FilesMoved  int
	DirsRemoved int
	Errors      []error
}

// Err joins every collected error, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.Errors...)
}

// Option configures Flatten.
type Option func(*flattener)

func WithLogger(l *slog.Logger) Option {
	return func(f *flattener) { f.logger = l }
}

// WithDryRun counts what would move without touching the filesystem.
func WithDryRun(dry bool) Option {
	return func(f *flattener) { f.dryRun = dry }
}

type flattener struct {
	target string
	logger *slog.Logger
	dryRun bool
	result Result
}

// Flatten moves every regular file below currentRoot into targetRoot and
// removes the emptied directories. currentRoot and targetRoot may be the
// same directory, which flattens it in place; files already directly in
// targetRoot are left untouched. Symlinks and other non-regular entries are
// skipped.
func Flatten(currentRoot, targetRoot string, opts ...Option) Result {
	f := &flattener{logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}

	current, err := filepath.Abs(currentRoot)
	if err != nil {
		f.fail("resolving root", currentRoot, err)
		return f.result
	}
	f.target, err = filepath.Abs(targetRoot)
	if err != nil {
		f.fail("resolving target", targetRoot, err)
		return f.result
	}

	f.walk(current)
	f.logger.Debug("flatten finished",
		"root", current,
		"target", f.target,
		"files_moved", f.result.FilesMoved,
		"dirs_removed", f.result.DirsRemoved,
		"errors", len(f.result.Errors),
	)
	return f.result
}

func (f *flattener) walk(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		f.fail("reading directory", dir, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == "." || name == ".." {
			continue
		}
		path := filepath.Join(dir, name)

		switch {
		case entry.IsDir():
			f.walk(path)
			f.removeDir(path)
		case entry.Type().IsRegular():
			if dir == f.target {
				continue
			}
			f.move(path, filepath.Join(f.target, name))
		default:
			f.logger.Debug("flatten skipping non-regular entry", "path", path, "type", entry.Type().String())
		}
	}
}

// move renames src onto dst, falling back to copy+remove when a rename is
// not possible (e.g. target on another filesystem).
func (f *flattener) move(src, dst string) {
	if f.dryRun {
		f.result.FilesMoved++
		return
	}

	if err := os.Rename(src, dst); err == nil {
		f.result.FilesMoved++
		f.logger.Debug("flatten moved file", "src", src, "dst", dst)
		return
	}

	if _, err := platform.CopyFile(src, dst); err != nil {
		f.fail("copying file", src, err)
		return
	}
	if err := os.Remove(src); err != nil {
		f.fail("removing original", src, err)
		return
	}
	f.result.FilesMoved++
	f.logger.Debug("flatten copied file", "src", src, "dst", dst)
}

func (f *flattener) removeDir(path string) {
	if path == f.target {
		return
	}
	if f.dryRun {
		f.result.DirsRemoved++
		return
	}
	if err := os.Remove(path); err != nil {
		f.fail("removing directory", path, err)
		return
	}
	f.result.DirsRemoved++
}

func (f *flattener) fail(op, path string, err error) {
	f.logger.Warn("flatten: "+op+" failed", "path", path, "error", err)
	f.result.Errors = append(f.result.Errors, fmt.Errorf("%s %s: %w", op, path, err))
}
