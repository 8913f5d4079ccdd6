// Package engine is the built-in replicate copier: it mirrors a source file
// or tree into a destination directory with a pool of workers, writing each
// file to a temporary name and renaming it into place.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/stats"
)

// DefaultWorkers is the worker count used when Config.Workers is unset.
const DefaultWorkers = 4

// Config describes a replicate run.
type Config struct {
	Src     string
	Dst     string
	Workers int
	// Verify re-reads every copied file and compares BLAKE3 digests.
	Verify bool
	// BWLimit caps aggregate throughput in bytes per second; 0 is unlimited.
	BWLimit int64
	// Filter selects which source paths are replicated; nil means all.
	Filter *filter.Set
	// Force copies files even when size and mtime already match.
	Force  bool
	DryRun bool
	Logger *slog.Logger
}

// Result is the outcome of a replicate run.
type Result struct {
	Stats stats.Snapshot
	Err   error
}

// ErrVerifyFailed is wrapped by Run when a copied file does not match.
var ErrVerifyFailed = errors.New("verification failed")

// Run replicates cfg.Src into cfg.Dst, blocking until complete. A directory
// source has its contents mirrored under Dst; a file source is copied into
// Dst, which is created when missing.
func Run(ctx context.Context, cfg Config) Result {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	srcInfo, err := os.Lstat(cfg.Src)
	if err != nil {
		return Result{Err: fmt.Errorf("source: %w", err)}
	}
	if err := os.MkdirAll(cfg.Dst, 0o755); err != nil {
		return Result{Err: fmt.Errorf("create destination: %w", err)}
	}

	collector := stats.NewCollector()
	pool := newWorkerPool(cfg, collector)

	var tasks <-chan FileTask
	var scanErrs <-chan error
	srcRoot := cfg.Src
	if srcInfo.IsDir() {
		tasks, scanErrs = scan(ctx, cfg.Src, cfg.Dst, cfg.Filter)
	} else {
		srcRoot = filepath.Dir(cfg.Src)
		tasks, scanErrs = single(cfg.Src, cfg.Dst, srcInfo)
	}

	errs := make(chan error, 64)
	var errCount int
	var firstErr error
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for err := range errs {
			errCount++
			if firstErr == nil {
				firstErr = err
			}
			cfg.Logger.Warn("replicate error", "error", err)
		}
	}()

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		for err := range scanErrs {
			errs <- err
		}
	}()

	pool.run(ctx, tasks, errs)
	<-scanDone

	if cfg.Verify && !cfg.DryRun && ctx.Err() == nil {
		vr := Verify(ctx, VerifyConfig{
			SrcRoot: srcRoot,
			DstRoot: cfg.Dst,
			Workers: cfg.Workers,
			Filter:  cfg.Filter,
			Only:    onlyFile(cfg.Src, srcInfo),
			Stats:   collector,
		})
		for _, ve := range vr.Errors {
			errs <- fmt.Errorf("%w: %s", ErrVerifyFailed, ve)
		}
	}

	close(errs)
	<-collected

	if firstErr == nil {
		firstErr = ctx.Err()
	}
	if errCount > 1 {
		firstErr = fmt.Errorf("%w (and %d more errors)", firstErr, errCount-1)
	}

	snap := collector.Snapshot()
	cfg.Logger.Debug("replicate finished", "src", cfg.Src, "dst", cfg.Dst, "stats", snap.String())
	return Result{Stats: snap, Err: firstErr}
}

func onlyFile(src string, info os.FileInfo) string {
	if info.IsDir() {
		return ""
	}
	return filepath.Base(src)
}
