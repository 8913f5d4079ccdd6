package engine

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/stats"
)

// VerifyConfig controls a verification pass.
type VerifyConfig struct {
	SrcRoot string
	DstRoot string
	Workers int
	Filter  *filter.Set
	// Only restricts the pass to one path relative to SrcRoot.
	Only string
	// Flat compares against DstRoot/<basename>, for flattened destinations.
	Flat  bool
	Stats *stats.Collector
}

// VerifyResult holds the outcome of a verification pass.
type VerifyResult struct {
	Verified int64
	Failed   int64
	Errors   []VerifyError
}

// VerifyError records a single mismatch or unreadable file.
type VerifyError struct {
	Path    string
	SrcHash string
	DstHash string
	Err     error
}

func (e VerifyError) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("%s: src %s != dst %s", e.Path, short(e.SrcHash), short(e.DstHash))
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// Verify compares the BLAKE3 digest of every regular file under SrcRoot
// with its counterpart under DstRoot, fanning out to cfg.Workers
// goroutines. A missing destination file is a failure.
func Verify(ctx context.Context, cfg VerifyConfig) VerifyResult {
	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	files, walkErrs := collectVerifyFiles(ctx, cfg)

	var (
		mu     sync.Mutex
		result VerifyResult
		wg     sync.WaitGroup
	)
	fail := func(ve VerifyError) {
		mu.Lock()
		result.Failed++
		result.Errors = append(result.Errors, ve)
		mu.Unlock()
		if cfg.Stats != nil {
			cfg.Stats.AddFilesVerifyFailed(1)
		}
	}
	for _, ve := range walkErrs {
		fail(ve)
	}

	paths := make(chan string, workers*2)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range paths {
				if ctx.Err() != nil {
					continue
				}

				srcHash, err := HashFile(filepath.Join(cfg.SrcRoot, rel))
				if err != nil {
					fail(VerifyError{Path: rel, Err: err})
					continue
				}
				dstHash, err := HashFile(cfg.dstPath(rel))
				if err != nil {
					fail(VerifyError{Path: rel, SrcHash: srcHash, Err: err})
					continue
				}
				if srcHash != dstHash {
					fail(VerifyError{Path: rel, SrcHash: srcHash, DstHash: dstHash})
					continue
				}

				mu.Lock()
				result.Verified++
				mu.Unlock()
				if cfg.Stats != nil {
					cfg.Stats.AddFilesVerified(1)
				}
			}
		}()
	}

	for _, f := range files {
		paths <- f
	}
	close(paths)
	wg.Wait()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Path < result.Errors[j].Path })
	return result
}

func (cfg VerifyConfig) dstPath(rel string) string {
	if cfg.Flat {
		return filepath.Join(cfg.DstRoot, filepath.Base(rel))
	}
	return filepath.Join(cfg.DstRoot, rel)
}

// collectVerifyFiles returns the relative paths of regular source files
// that pass the filter.
func collectVerifyFiles(ctx context.Context, cfg VerifyConfig) ([]string, []VerifyError) {
	if cfg.Only != "" {
		return []string{cfg.Only}, nil
	}

	var files []string
	var errs []VerifyError
	_ = filepath.WalkDir(cfg.SrcRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, VerifyError{Path: path, Err: err})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if path == cfg.SrcRoot {
			return nil
		}

		rel, err := filepath.Rel(cfg.SrcRoot, path)
		if err != nil {
			return nil
		}
		if !cfg.Filter.Match(filepath.ToSlash(rel), d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() {
			files = append(files, rel)
		}
		return nil
	})
	return files, errs
}
