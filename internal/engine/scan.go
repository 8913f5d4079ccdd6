package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/bamsammich/savewarden/internal/filter"
)

// scan walks srcRoot and emits one task per entry below it. Directories are
// emitted before their contents.
func scan(ctx context.Context, srcRoot, dstRoot string, f *filter.Set) (<-chan FileTask, <-chan error) {
	tasks := make(chan FileTask, 256)
	errs := make(chan error, 16)

	go func() {
		defer close(tasks)
		defer close(errs)

		walkErr := filepath.WalkDir(srcRoot, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				errs <- fmt.Errorf("scan %s: %w", path, err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path == srcRoot {
				return nil
			}

			rel, err := filepath.Rel(srcRoot, path)
			if err != nil {
				return err
			}
			if !f.Match(filepath.ToSlash(rel), d.IsDir()) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}

			info, err := d.Info()
			if err != nil {
				errs <- fmt.Errorf("stat %s: %w", path, err)
				return nil
			}
			task, ok, err := taskFor(path, filepath.Join(dstRoot, rel), info)
			if err != nil {
				errs <- err
				return nil
			}
			if !ok {
				return nil
			}
			task.RelPath = rel

			select {
			case tasks <- task:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if walkErr != nil && ctx.Err() == nil {
			errs <- walkErr
		}
	}()

	return tasks, errs
}

// single emits the one task for a non-directory source copied into dstDir.
func single(src, dstDir string, info os.FileInfo) (<-chan FileTask, <-chan error) {
	tasks := make(chan FileTask, 1)
	errs := make(chan error, 1)

	name := filepath.Base(src)
	task, ok, err := taskFor(src, filepath.Join(dstDir, name), info)
	switch {
	case err != nil:
		errs <- err
	case ok:
		task.RelPath = name
		tasks <- task
	}
	close(tasks)
	close(errs)
	return tasks, errs
}

// taskFor builds the task for one entry. Sockets, devices and pipes are not
// replicated and report ok == false.
func taskFor(src, dst string, info os.FileInfo) (FileTask, bool, error) {
	task := FileTask{
		SrcPath: src,
		DstPath: dst,
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		ModTime: info.ModTime(),
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		task.Type = Dir
	case mode.IsRegular():
		task.Type = Regular
	case mode&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return FileTask{}, false, fmt.Errorf("readlink %s: %w", src, err)
		}
		task.Type = Symlink
		task.LinkTarget = target
	default:
		return FileTask{}, false, nil
	}
	return task, true, nil
}
