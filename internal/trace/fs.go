package trace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/bamsammich/savewarden/internal/event"
)

// FSSource watches a directory tree with fsnotify and emits file records.
// Subdirectories created while running are watched as they appear.
type FSSource struct {
	Root   string
	Logger *slog.Logger
}

func (s *FSSource) Name() string { return "fs:" + s.Root }

func (s *FSSource) Run(ctx context.Context, emit func(event.Record) bool) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := s.addTree(w, s.Root, nil); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			rec, ok := convertFSEvent(ev)
			if !ok {
				continue
			}
			if !emit(rec) {
				return nil
			}

			// A new directory may already hold files by the time it is
			// watched; report those as creates.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Lstat(ev.Name); err == nil && info.IsDir() {
					if err := s.addTree(w, ev.Name, emit); err != nil {
						logger.Warn("watching new directory", "path", ev.Name, "error", err)
					}
				}
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("fsnotify error", "root", s.Root, "error", err)
		}
	}
}

// addTree watches root and every directory below it. When emit is non-nil,
// regular files found on the way are reported as FileCreate.
func (s *FSSource) addTree(w *fsnotify.Watcher, root string, emit func(event.Record) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if err := w.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if emit != nil && d.Type().IsRegular() {
			emit(event.NewRecord(event.FileCreate, 0, path))
		}
		return nil
	})
}

func convertFSEvent(ev fsnotify.Event) (event.Record, bool) {
	var kind event.Kind
	switch {
	case ev.Has(fsnotify.Create):
		kind = event.FileCreate
	case ev.Has(fsnotify.Write):
		kind = event.FileWrite
	case ev.Has(fsnotify.Remove):
		kind = event.FileDelete
	case ev.Has(fsnotify.Rename):
		kind = event.FileRename
	default:
		return event.Record{}, false
	}
	return event.NewRecord(kind, 0, ev.Name), true
}
