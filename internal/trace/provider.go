// Package trace turns filesystem and process activity into event records
// and hands them to a dispatcher.
//
// Any number of Sources may run concurrently, but the dispatcher's queue
// accepts a single producer, so the Provider funnels every source through
// one forwarding goroutine.
package trace

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bamsammich/savewarden/internal/event"
)

var (
	ErrAlreadyStarted = errors.New("trace: provider already started")
	ErrNoSink         = errors.New("trace: no dispatch sink enabled")
)

// Source produces records until ctx is cancelled. emit returns false once
// the provider is shutting down; the source should return then.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(event.Record) bool) error
}

// Sink accepts records without blocking. *dispatch.Dispatcher satisfies it.
type Sink interface {
	Enqueue(rec event.Record) bool
}

// Provider owns the sources of one trace session.
type Provider struct {
	sources []Source
	tc      *event.TraceContext
	logger  *slog.Logger

	mu      sync.Mutex
	sink    Sink
	started bool
	cancel  context.CancelFunc
	records chan event.Record
	srcWG   sync.WaitGroup
	fwdDone chan struct{}

	forwarded atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a provider for session over sources.
func New(session string, sources ...Source) *Provider {
	host, _ := os.Hostname() //nolint:errcheck // empty host is acceptable
	return &Provider{
		sources: sources,
		tc:      &event.TraceContext{Session: session, Host: host},
		logger:  slog.Default(),
	}
}

func (p *Provider) SetLogger(l *slog.Logger) {
	p.logger = l
}

// TraceContext returns the session context delivered with every record.
func (p *Provider) TraceContext() *event.TraceContext {
	return p.tc
}

// EnableDispatchTo routes every record to sink. It must be called before
// Start.
func (p *Provider) EnableDispatchTo(sink Sink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// Start runs every source and the forwarder. Source failures are logged;
// the remaining sources keep running.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if p.sink == nil {
		return ErrNoSink
	}
	p.started = true
	p.tc.StartedAt = time.Now()

	ctx, p.cancel = context.WithCancel(ctx)
	p.records = make(chan event.Record, 256)
	p.fwdDone = make(chan struct{})
	go p.forward(p.sink)

	emit := func(rec event.Record) bool {
		select {
		case p.records <- rec:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for _, src := range p.sources {
		p.srcWG.Add(1)
		go func() {
			defer p.srcWG.Done()
			p.logger.Debug("trace source starting", "source", src.Name())
			if err := src.Run(ctx, emit); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error("trace source failed", "source", src.Name(), "error", err)
				return
			}
			p.logger.Debug("trace source stopped", "source", src.Name())
		}()
	}

	p.logger.Info("trace session started", "session", p.tc.Session, "sources", len(p.sources))
	return nil
}

// forward is the only goroutine that pushes into the sink.
func (p *Provider) forward(sink Sink) {
	defer close(p.fwdDone)
	for rec := range p.records {
		if sink.Enqueue(rec) {
			p.forwarded.Add(1)
		} else {
			p.rejected.Add(1)
		}
	}
}

// Stop cancels the sources and waits for them and the forwarder to exit.
// Safe to call more than once and before Start.
func (p *Provider) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.srcWG.Wait()
	close(p.records)
	<-p.fwdDone

	p.logger.Info("trace session stopped",
		"session", p.tc.Session,
		"forwarded", p.forwarded.Load(),
		"rejected", p.rejected.Load(),
	)
}

// Forwarded returns how many records the sink accepted.
func (p *Provider) Forwarded() uint64 { return p.forwarded.Load() }

// Rejected returns how many records the sink refused.
func (p *Provider) Rejected() uint64 { return p.rejected.Load() }
