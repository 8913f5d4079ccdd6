package engine

import (
	"context"
	"sync"

	"github.com/bamsammich/savewarden/internal/stats"
)

// Copier runs Run for each Copy call with a fixed configuration template.
// It satisfies the autosave copier contract and reports the last run's
// counters.
type Copier struct {
	cfg Config

	mu   sync.Mutex
	last stats.Snapshot
}

// NewCopier returns a Copier; cfg.Src and cfg.Dst are ignored.
func NewCopier(cfg Config) *Copier {
	return &Copier{cfg: cfg}
}

func (c *Copier) Copy(ctx context.Context, src, dst string) error {
	cfg := c.cfg
	cfg.Src, cfg.Dst = src, dst
	res := Run(ctx, cfg)

	c.mu.Lock()
	c.last = res.Stats
	c.mu.Unlock()
	return res.Err
}

// LastStats returns the counters of the most recent Copy.
func (c *Copier) LastStats() stats.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}
