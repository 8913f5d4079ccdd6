// Package metrics exposes savewarden's Prometheus collectors on a private
// registry. There is no HTTP listener; snapshots are written to a
// node-exporter style textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "savewarden"

// Registry holds the collectors. A nil *Registry is valid and records
// nothing, so components can take one unconditionally.
type Registry struct {
	eventsEnqueued  prometheus.Counter
	eventsDropped   prometheus.Counter
	eventsHandled   prometheus.Counter
	handlerFailures prometheus.Counter
	queueDepth      prometheus.Gauge

	jobs            *prometheus.CounterVec
	copyDuration    prometheus.Histogram
	filesFlattened  prometheus.Counter
	controllerState *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Registry with all collectors registered under namespace.
func New(namespace string) *Registry {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	r := &Registry{registry: prometheus.NewRegistry()}

	r.eventsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_enqueued_total",
		Help:      "Trace records accepted into the event queue",
	})
	r.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Trace records dropped because the event queue was full",
	})
	r.eventsHandled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_handled_total",
		Help:      "Trace records delivered to the controller",
	})
	r.handlerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_failures_total",
		Help:      "Controller calls that returned an error or panicked",
	})
	r.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queue_depth",
		Help:      "Records waiting in the event queue",
	})
	r.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "autosave_jobs_total",
		Help:      "Autosave copy jobs by outcome",
	}, []string{"outcome"})
	r.copyDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "autosave_copy_duration_seconds",
		Help:      "Wall time of the copy step of an autosave job",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
	r.filesFlattened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "flatten_files_moved_total",
		Help:      "Files moved into the destination root by flattening",
	})
	r.controllerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "controller_state",
		Help:      "Current lifecycle state (1 for the active state)",
	}, []string{"state"})

	r.registry.MustRegister(
		r.eventsEnqueued,
		r.eventsDropped,
		r.eventsHandled,
		r.handlerFailures,
		r.queueDepth,
		r.jobs,
		r.copyDuration,
		r.filesFlattened,
		r.controllerState,
	)

	return r
}

func (r *Registry) EventEnqueued() {
	if r == nil {
		return
	}
	r.eventsEnqueued.Inc()
}

func (r *Registry) EventDropped() {
	if r == nil {
		return
	}
	r.eventsDropped.Inc()
}

func (r *Registry) EventHandled(err error) {
	if r == nil {
		return
	}
	r.eventsHandled.Inc()
	if err != nil {
		r.handlerFailures.Inc()
	}
}

func (r *Registry) QueueDepth(n int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(n))
}

// JobFinished records one autosave job and how long its copy step took.
func (r *Registry) JobFinished(err error, copyTime time.Duration) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.jobs.WithLabelValues(outcome).Inc()
	r.copyDuration.Observe(copyTime.Seconds())
}

func (r *Registry) FilesFlattened(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.filesFlattened.Add(float64(n))
}

// ControllerState marks state as active and every other known state idle.
func (r *Registry) ControllerState(state string, known []string) {
	if r == nil {
		return
	}
	for _, s := range known {
		v := 0.0
		if s == state {
			v = 1
		}
		r.controllerState.WithLabelValues(s).Set(v)
	}
}

// Gatherer returns the underlying registry. A nil Registry gathers nothing.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes the current values in the Prometheus text format.
// The write is atomic (temp file + rename).
func (r *Registry) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
