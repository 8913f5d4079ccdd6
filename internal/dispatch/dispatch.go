// Package dispatch moves trace records from the trace source's callback onto
// a dedicated consumer goroutine that owns every controller call.
//
// The producer side (Enqueue) never blocks: records go into a bounded SPSC
// queue and are dropped when it is full. The consumer polls the queue and
// applies a Backoff when it is empty. A controller error or panic is logged
// and the consumer moves on to the next record.
package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/bamsammich/savewarden/internal/event"
	"github.com/bamsammich/savewarden/internal/metrics"
	"github.com/bamsammich/savewarden/internal/queue"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("dispatch: already started")

	// ErrSkip may be returned by a controller for records it ignores. It is
	// logged at debug level and not counted as a failure.
	ErrSkip = errors.New("dispatch: record skipped")

	// ErrHandlerPanic wraps a recovered controller panic.
	ErrHandlerPanic = errors.New("dispatch: controller panicked")
)

// Controller consumes trace records. It is only ever called from the
// dispatcher's consumer goroutine and must not block for long: a slow
// controller stalls all event processing.
type Controller interface {
	HandleTraceEvent(rec event.Record, tc *event.TraceContext) error
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(rec event.Record, tc *event.TraceContext) error

func (f ControllerFunc) HandleTraceEvent(rec event.Record, tc *event.TraceContext) error {
	return f(rec, tc)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithCapacity sets the queue capacity (default queue.DefaultCapacity).
func WithCapacity(n int) Option {
	return func(d *Dispatcher) { d.capacity = n }
}

// WithBackoff sets the empty-queue strategy (default YieldBackoff).
func WithBackoff(b Backoff) Option {
	return func(d *Dispatcher) { d.backoff = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTraceContext sets the context handed to the controller with every record.
func WithTraceContext(tc *event.TraceContext) Option {
	return func(d *Dispatcher) { d.tc = tc }
}

// Stats is a point-in-time read of the dispatcher counters.
type Stats struct {
	Enqueued uint64
	Dropped  uint64
	Handled  uint64
	Failed   uint64
	Pending  int
}

// Dispatcher owns the event queue and the consumer goroutine.
type Dispatcher struct {
	ctrl     Controller
	capacity int
	backoff  Backoff
	logger   *slog.Logger
	metrics  *metrics.Registry
	tc       *event.TraceContext
	queue    *queue.SPSC[event.Record]
	dropLog  *rate.Limiter

	mu       sync.Mutex
	started  bool
	stopping atomic.Bool
	done     chan struct{}

	handled atomic.Uint64
	failed  atomic.Uint64
}

// New creates a Dispatcher delivering to ctrl.
func New(ctrl Controller, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		ctrl:     ctrl,
		capacity: queue.DefaultCapacity,
		backoff:  YieldBackoff{},
		logger:   slog.Default(),
		tc:       &event.TraceContext{},
		dropLog:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
	for _, o := range opts {
		o(d)
	}
	d.queue = queue.New[event.Record](d.capacity)
	return d
}

// Enqueue hands a record to the consumer. It is the producer side of the
// queue: call it from exactly one goroutine. It never blocks and returns
// false when the record was dropped (queue full or dispatcher stopped).
func (d *Dispatcher) Enqueue(rec event.Record) bool {
	if d.stopping.Load() {
		return false
	}
	if !d.queue.Push(rec) {
		d.metrics.EventDropped()
		if d.dropLog.Allow() {
			d.logger.Warn("event queue full, dropping records",
				"capacity", d.queue.Cap(),
				"dropped", d.queue.Dropped(),
			)
		}
		return false
	}
	d.metrics.EventEnqueued()
	return true
}

// Start spawns the consumer goroutine. It must be called once; later calls
// return ErrAlreadyStarted.
func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}
	d.started = true
	d.done = make(chan struct{})
	go d.run()

	d.logger.Debug("dispatcher started", "capacity", d.queue.Cap())
	return nil
}

// Stop signals the consumer and waits for it to exit. Records still queued
// are discarded. Stop is idempotent and safe to call before Start.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopping.Store(true)
	done := d.done
	d.mu.Unlock()

	if done == nil {
		return
	}
	<-done

	if n := d.queue.Len(); n > 0 {
		d.logger.Debug("dispatcher stopped with undelivered records", "pending", n)
	}
}

// Stats returns the current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued: d.queue.Pushed(),
		Dropped:  d.queue.Dropped(),
		Handled:  d.handled.Load(),
		Failed:   d.failed.Load(),
		Pending:  d.queue.Len(),
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	idle := 0
	for !d.stopping.Load() {
		rec, ok := d.queue.Pop()
		if !ok {
			idle++
			d.backoff.Idle(idle)
			continue
		}
		idle = 0
		d.deliver(rec)
		d.metrics.QueueDepth(d.queue.Len())
	}
}

func (d *Dispatcher) deliver(rec event.Record) {
	err := d.call(rec)
	d.handled.Add(1)

	switch {
	case err == nil:
		d.metrics.EventHandled(nil)
	case errors.Is(err, ErrSkip):
		d.metrics.EventHandled(nil)
		d.logger.Debug("record skipped", "kind", rec.Kind, "pid", rec.PID)
	default:
		d.failed.Add(1)
		d.metrics.EventHandled(err)
		d.logger.Error("controller failed, continuing",
			"kind", rec.Kind,
			"pid", rec.PID,
			"path", rec.PathString(),
			"error", err,
		)
	}
}

func (d *Dispatcher) call(rec event.Record) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, p)
		}
	}()
	return d.ctrl.HandleTraceEvent(rec, d.tc)
}
