// Package stats counts what a replicate copy run did.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Collector is safe for concurrent use by copy workers.
type Collector struct {
	filesScanned      atomic.Int64
	filesCopied       atomic.Int64
	filesFailed       atomic.Int64
	filesSkipped      atomic.Int64
	bytesCopied       atomic.Int64
	dirsCreated       atomic.Int64
	symlinksCreated   atomic.Int64
	filesVerified     atomic.Int64
	filesVerifyFailed atomic.Int64
	startTime         time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesScanned      int64
	FilesCopied       int64
	FilesFailed       int64
	FilesSkipped      int64
	BytesCopied       int64
	DirsCreated       int64
	SymlinksCreated   int64
	FilesVerified     int64
	FilesVerifyFailed int64
	Elapsed           time.Duration
}

func (c *Collector) AddFilesScanned(n int64)      { c.filesScanned.Add(n) }
func (c *Collector) AddFilesCopied(n int64)       { c.filesCopied.Add(n) }
func (c *Collector) AddFilesFailed(n int64)       { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64)      { c.filesSkipped.Add(n) }
func (c *Collector) AddBytesCopied(n int64)       { c.bytesCopied.Add(n) }
func (c *Collector) AddDirsCreated(n int64)       { c.dirsCreated.Add(n) }
func (c *Collector) AddSymlinksCreated(n int64)   { c.symlinksCreated.Add(n) }
func (c *Collector) AddFilesVerified(n int64)     { c.filesVerified.Add(n) }
func (c *Collector) AddFilesVerifyFailed(n int64) { c.filesVerifyFailed.Add(n) }

func (c *Collector) Snapshot() Snapshot {
	var elapsed time.Duration
	if !c.startTime.IsZero() {
		elapsed = time.Since(c.startTime)
	}
	return Snapshot{
		FilesScanned:      c.filesScanned.Load(),
		FilesCopied:       c.filesCopied.Load(),
		FilesFailed:       c.filesFailed.Load(),
		FilesSkipped:      c.filesSkipped.Load(),
		BytesCopied:       c.bytesCopied.Load(),
		DirsCreated:       c.dirsCreated.Load(),
		SymlinksCreated:   c.symlinksCreated.Load(),
		FilesVerified:     c.filesVerified.Load(),
		FilesVerifyFailed: c.filesVerifyFailed.Load(),
		Elapsed:           elapsed,
	}
}

// Throughput returns bytes copied per second over the run so far.
func (s Snapshot) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.BytesCopied) / s.Elapsed.Seconds()
}

func (s Snapshot) String() string {
	out := fmt.Sprintf(
		"copied=%d failed=%d skipped=%d bytes=%s dirs=%d symlinks=%d",
		s.FilesCopied, s.FilesFailed, s.FilesSkipped,
		FormatBytes(s.BytesCopied), s.DirsCreated, s.SymlinksCreated,
	)
	if s.FilesVerified > 0 || s.FilesVerifyFailed > 0 {
		out += fmt.Sprintf(" verified=%d verify_failed=%d", s.FilesVerified, s.FilesVerifyFailed)
	}
	return out
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
