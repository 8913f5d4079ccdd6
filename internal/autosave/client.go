// Package autosave runs backup copies of a save directory on a dedicated
// worker goroutine.
//
// Requests are fire-and-forget and collapse: at most one copy job is in
// flight, a request made while the worker is delaying restarts the delay
// with the new value, and any number of requests made while a job is
// copying, flattening or notifying produce exactly one follow-up job.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/savewarden/internal/flatten"
	"github.com/bamsammich/savewarden/internal/metrics"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("autosave: already started")

	// ErrNoCopier fails a job when neither a tool nor a Copier is set.
	ErrNoCopier = errors.New("autosave: no copier configured")
)

// Report describes one finished job.
type Report struct {
	Source      string
	Destination string
	Started     time.Time
	Finished    time.Time
	CopyTime    time.Duration
	Err         error
	Code        int
	Flatten     flatten.Result
	Files       int64
	Bytes       int64
}

// Config holds the initial client settings. Every field can be changed
// later through the matching setter.
type Config struct {
	Source         string
	Destination    string
	FlattenOnWrite bool
	Copier         Copier

	OnCopyStart   func(src, dst string)
	OnComplete    func(src, dst string)
	OnError       func(code int, err error)
	OnStateChange func(State)
	OnJobDone     func(Report)

	Logger  *slog.Logger
	Metrics *metrics.Registry
}

// Client owns the autosave worker. Start it once, and Close it (or Stop and
// Wait) before dropping it: a Client abandoned with a running worker leaks
// the goroutine.
type Client struct {
	logger  *slog.Logger
	metrics *metrics.Registry

	mu   sync.Mutex
	cond *sync.Cond

	// Guarded by mu.
	src, dst       string
	flattenOnWrite bool
	copier         Copier
	onCopyStart    func(src, dst string)
	onComplete     func(src, dst string)
	onError        func(code int, err error)
	onStateChange  func(State)
	onJobDone      func(Report)

	pending  bool
	delay    time.Duration
	stopping bool
	started  bool
	state    State
	done     chan struct{}

	jobs atomic.Uint64
}

// New creates a client from cfg. The worker does not run until Start.
func New(cfg Config) *Client {
	c := &Client{
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		src:            cfg.Source,
		dst:            cfg.Destination,
		flattenOnWrite: cfg.FlattenOnWrite,
		copier:         cfg.Copier,
		onCopyStart:    cfg.OnCopyStart,
		onComplete:     cfg.OnComplete,
		onError:        cfg.OnError,
		onStateChange:  cfg.OnStateChange,
		onJobDone:      cfg.OnJobDone,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// NewWithTool creates a client that copies with the external tool at
// toolPath. An empty toolPath leaves the client without a copier; jobs
// fail with ErrNoCopier until SetTool or SetCopier is called.
func NewWithTool(src, dst, toolPath string) *Client {
	cfg := Config{Source: src, Destination: dst}
	if toolPath != "" {
		cfg.Copier = ToolCopier{Path: toolPath}
	}
	return New(cfg)
}

func (c *Client) SetSource(src string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.src = src
}

func (c *Client) SetDestination(dst string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dst = dst
}

// SetTool switches to the external tool at path. An empty path removes the
// copier.
func (c *Client) SetTool(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if path == "" {
		c.copier = nil
		return
	}
	c.copier = ToolCopier{Path: path}
}

func (c *Client) SetCopier(cp Copier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copier = cp
}

func (c *Client) SetFlattenOnWrite(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flattenOnWrite = enabled
}

// SetOnCopyStart sets the callback run on the worker right before each copy.
func (c *Client) SetOnCopyStart(fn func(src, dst string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCopyStart = fn
}

// SetOnComplete sets the callback run after a successful job.
func (c *Client) SetOnComplete(fn func(src, dst string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = fn
}

// SetOnError sets the callback run after a failed job.
func (c *Client) SetOnError(fn func(code int, err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

func (c *Client) SetOnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

func (c *Client) SetOnJobDone(fn func(Report)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onJobDone = fn
}

// State returns the worker's current phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Jobs returns the number of finished jobs, successful or not.
func (c *Client) Jobs() uint64 {
	return c.jobs.Load()
}

// RequestCopy asks for a copy after delay. It never blocks on a running job.
func (c *Client) RequestCopy(delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	c.mu.Lock()
	c.pending = true
	c.delay = delay
	c.mu.Unlock()
	c.cond.Broadcast()

	c.logger.Debug("autosave requested", "delay", delay)
}

// Start spawns the worker goroutine. Only the first call has an effect;
// later calls return ErrAlreadyStarted.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.done = make(chan struct{})
	go c.run()
	return nil
}

// Stop asks the worker to exit and returns without waiting. A job that is
// already delaying, copying or flattening runs to completion first; a
// request still waiting for the worker is abandoned.
func (c *Client) Stop() {
	c.mu.Lock()
	c.stopping = true
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Wait blocks until the worker has exited. It returns immediately if the
// client was never started.
func (c *Client) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close stops the worker and waits for it.
func (c *Client) Close() error {
	c.Stop()
	c.Wait()
	return nil
}

// job is the snapshot of client settings a single copy runs with.
type job struct {
	src, dst       string
	flattenOnWrite bool
	copier         Copier
	onCopyStart    func(src, dst string)
	onComplete     func(src, dst string)
	onError        func(code int, err error)
	onJobDone      func(Report)
}

func (c *Client) run() {
	defer close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		c.transition(WaitingForRequest)
		for !c.pending && !c.stopping {
			c.cond.Wait()
		}
		if c.stopping {
			if c.pending {
				c.logger.Debug("autosave stopping with a pending request")
			}
			c.transition(Stopped)
			return
		}

		c.pending = false
		if c.delay > 0 {
			c.transition(Delaying)
			c.waitDelay()
		}

		j := job{
			src:            c.src,
			dst:            c.dst,
			flattenOnWrite: c.flattenOnWrite,
			copier:         c.copier,
			onCopyStart:    c.onCopyStart,
			onComplete:     c.onComplete,
			onError:        c.onError,
			onJobDone:      c.onJobDone,
		}

		c.mu.Unlock()
		c.execute(j)
		c.mu.Lock()
	}
}

// waitDelay sleeps for c.delay with mu held across the condition waits. A
// request arriving meanwhile is absorbed into this job and restarts the
// delay with its own value. Stop does not cut the delay short.
func (c *Client) waitDelay() {
	deadline := time.Now().Add(c.delay)
	timer := time.AfterFunc(c.delay, c.wake)

	defer func() { timer.Stop() }()

	for {
		if c.pending {
			c.pending = false
			timer.Stop()
			if c.delay == 0 {
				return
			}
			deadline = time.Now().Add(c.delay)
			timer = time.AfterFunc(c.delay, c.wake)
			c.logger.Debug("autosave delay restarted", "delay", c.delay)
		}
		if !time.Now().Before(deadline) {
			return
		}
		c.cond.Wait()
	}
}

// wake broadcasts under the lock so a timer firing before the worker
// reaches cond.Wait is not lost.
func (c *Client) wake() {
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
}

// transition records a new state. It must be called with mu held; the
// state hook runs with mu released.
func (c *Client) transition(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if fn := c.onStateChange; fn != nil {
		c.mu.Unlock()
		fn(s)
		c.mu.Lock()
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.transition(s)
	c.mu.Unlock()
}

func (c *Client) execute(j job) {
	report := Report{Source: j.src, Destination: j.dst, Started: time.Now()}

	if err := os.MkdirAll(j.dst, 0o755); err != nil {
		c.logger.Error("creating autosave destination", "dst", j.dst, "error", err)
	}

	c.setState(Copying)
	if j.onCopyStart != nil {
		j.onCopyStart(j.src, j.dst)
	}

	c.logger.Debug("autosave copy starting", "src", j.src, "dst", j.dst)
	var err error
	if j.copier == nil {
		err = ErrNoCopier
	} else {
		err = j.copier.Copy(context.Background(), j.src, j.dst)
	}
	report.CopyTime = time.Since(report.Started)
	if sr, ok := j.copier.(StatsReporter); ok && err == nil {
		snap := sr.LastStats()
		report.Files = snap.FilesCopied
		report.Bytes = snap.BytesCopied
	}

	if err == nil && j.flattenOnWrite {
		c.setState(Flattening)
		report.Flatten = flatten.Flatten(j.dst, j.dst, flatten.WithLogger(c.logger))
		c.metrics.FilesFlattened(report.Flatten.FilesMoved)
		if ferr := report.Flatten.Err(); ferr != nil {
			c.logger.Warn("autosave flatten incomplete", "dst", j.dst, "error", ferr)
		}
	}

	c.setState(Notifying)
	c.jobs.Add(1)
	report.Err = err
	report.Code = ErrorCode(err)
	report.Finished = time.Now()
	c.metrics.JobFinished(err, report.CopyTime)

	if err == nil {
		c.logger.Info("autosave complete",
			"src", j.src,
			"dst", j.dst,
			"duration", report.CopyTime.Round(time.Millisecond),
		)
		if j.onComplete != nil {
			j.onComplete(j.src, j.dst)
		}
	} else {
		c.logger.Error("autosave failed", "src", j.src, "dst", j.dst, "code", report.Code, "error", err)
		if j.onError != nil {
			j.onError(report.Code, err)
		}
	}

	if j.onJobDone != nil {
		j.onJobDone(report)
	}
}
