package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/bamsammich/savewarden/internal/platform"
	"github.com/bamsammich/savewarden/internal/stats"
)

// tmpSuffix marks in-progress files; they are renamed into place when done.
const tmpSuffix = ".sw-tmp"

type workerPool struct {
	cfg     Config
	stats   *stats.Collector
	limiter *rate.Limiter
}

func newWorkerPool(cfg Config, collector *stats.Collector) *workerPool {
	wp := &workerPool{cfg: cfg, stats: collector}
	if cfg.BWLimit > 0 {
		wp.limiter = NewBWLimiter(cfg.BWLimit)
	}
	return wp
}

// run starts cfg.Workers goroutines consuming tasks and blocks until the
// channel is drained or ctx is cancelled. Errors are sent to errs.
func (wp *workerPool) run(ctx context.Context, tasks <-chan FileTask, errs chan<- error) {
	var wg sync.WaitGroup
	for range wp.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				if ctx.Err() != nil {
					continue
				}
				if err := wp.process(ctx, task); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
}

func (wp *workerPool) process(ctx context.Context, task FileTask) error {
	if wp.cfg.DryRun {
		wp.stats.AddFilesScanned(1)
		wp.cfg.Logger.Debug("dry run", "src", task.SrcPath, "dst", task.DstPath)
		return nil
	}

	switch task.Type {
	case Dir:
		if err := os.MkdirAll(task.DstPath, os.FileMode(task.Mode)|0o700); err != nil {
			return fmt.Errorf("mkdir %s: %w", task.DstPath, err)
		}
		wp.stats.AddDirsCreated(1)
		return nil
	case Symlink:
		return wp.replicateSymlink(task)
	case Regular:
		return wp.copyRegularFile(ctx, task)
	default:
		return fmt.Errorf("unknown task type %d for %s", task.Type, task.SrcPath)
	}
}

func (wp *workerPool) replicateSymlink(task FileTask) error {
	if err := os.MkdirAll(filepath.Dir(task.DstPath), 0o755); err != nil {
		return fmt.Errorf("create parent dir for symlink %s: %w", task.DstPath, err)
	}
	if target, err := os.Readlink(task.DstPath); err == nil && target == task.LinkTarget {
		wp.stats.AddFilesSkipped(1)
		return nil
	}
	_ = os.Remove(task.DstPath)

	if err := os.Symlink(task.LinkTarget, task.DstPath); err != nil {
		return fmt.Errorf("symlink %s -> %s: %w", task.DstPath, task.LinkTarget, err)
	}
	wp.stats.AddSymlinksCreated(1)
	return nil
}

// unchanged reports whether dst already holds a copy with the same size and
// modification time.
func unchanged(task FileTask) bool {
	info, err := os.Lstat(task.DstPath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == task.Size && info.ModTime().Equal(task.ModTime)
}

func (wp *workerPool) copyRegularFile(ctx context.Context, task FileTask) error {
	wp.stats.AddFilesScanned(1)

	if !wp.cfg.Force && unchanged(task) {
		wp.stats.AddFilesSkipped(1)
		return nil
	}

	dir := filepath.Dir(task.DstPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		wp.stats.AddFilesFailed(1)
		return fmt.Errorf("create parent dir %s: %w", dir, err)
	}

	tmpName := fmt.Sprintf(".%s.%s%s", filepath.Base(task.DstPath), uuid.New().String()[:8], tmpSuffix)
	tmpPath := filepath.Join(dir, tmpName)
	defer os.Remove(tmpPath) //nolint:errcheck // no-op once renamed

	n, err := wp.copyData(ctx, task, tmpPath)
	if err != nil {
		wp.stats.AddFilesFailed(1)
		return fmt.Errorf("copy %s: %w", task.SrcPath, err)
	}

	if err := os.Chtimes(tmpPath, task.ModTime, task.ModTime); err != nil {
		wp.stats.AddFilesFailed(1)
		return fmt.Errorf("set times %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, task.DstPath); err != nil {
		wp.stats.AddFilesFailed(1)
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, task.DstPath, err)
	}

	wp.stats.AddFilesCopied(1)
	wp.stats.AddBytesCopied(n)
	return nil
}

// copyData writes the source contents to a new file at tmpPath. Without a
// bandwidth limit the platform fast path is used; with one, data goes
// through a rate-limited writer.
func (wp *workerPool) copyData(ctx context.Context, task FileTask, tmpPath string) (int64, error) {
	src, err := os.Open(task.SrcPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	dst, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(task.Mode))
	if err != nil {
		return 0, fmt.Errorf("create tmp: %w", err)
	}

	var n int64
	if wp.limiter == nil {
		var res platform.CopyResult
		res, err = platform.CopyFd(dst, src, task.Size)
		n = res.BytesWritten
	} else {
		w := &rateLimitedWriter{w: dst, limiter: wp.limiter, ctx: ctx}
		n, err = io.Copy(w, src)
	}
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
