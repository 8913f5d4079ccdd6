// Package fsm tracks the lifecycle of the watched application and turns
// save-directory activity into autosave requests while it runs.
//
// The controller is only ever called from the dispatcher's consumer
// goroutine and holds no locks.
package fsm

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bamsammich/savewarden/internal/dispatch"
	"github.com/bamsammich/savewarden/internal/event"
	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/metrics"
)

// ErrUnhandled is returned for records the controller has no use for. It
// wraps dispatch.ErrSkip so the dispatcher does not count it as a failure.
var ErrUnhandled = fmt.Errorf("fsm: unhandled record: %w", dispatch.ErrSkip)

// State is the lifecycle state of the watched application.
type State int32

const (
	Off State = iota
	Launching
	Running
	Exited
)

var stateNames = [...]string{
	Off:       "off",
	Launching: "launching",
	Running:   "running",
	Exited:    "exited",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// StateNames lists every state label, for metrics.
func StateNames() []string {
	return stateNames[:]
}

// Event is a lifecycle event derived from process records.
type Event int

const (
	LauncherStart Event = iota + 1
	LauncherTerminate
	LaunchComplete
	LaunchAbort
	SubjectStart
	SubjectTerminate
	SubjectFound
)

var eventNames = [...]string{
	LauncherStart:     "launcher_start",
	LauncherTerminate: "launcher_terminate",
	LaunchComplete:    "launch_complete",
	LaunchAbort:       "launch_abort",
	SubjectStart:      "subject_start",
	SubjectTerminate:  "subject_terminate",
	SubjectFound:      "subject_found",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) && eventNames[e] != "" {
		return eventNames[e]
	}
	return "unknown"
}

// Saver receives autosave requests. *autosave.Client satisfies it.
type Saver interface {
	RequestCopy(delay time.Duration)
}

// Config describes what the controller watches.
type Config struct {
	// Launcher and Subject are process names. A name cut to event.CommLen
	// bytes by the kernel also matches.
	Launcher string
	Subject  string

	// SaveDir is the directory whose writes trigger a save.
	SaveDir string
	Filter  *filter.Set
	Delay   time.Duration

	Saver   Saver
	Logger  *slog.Logger
	Metrics *metrics.Registry

	// OnTransition is called after every state change.
	OnTransition func(from, to State, ev Event)
}

// Controller is the lifecycle state machine.
type Controller struct {
	cfg     Config
	saveDir string
	logger  *slog.Logger

	state      atomic.Int32
	subjectPID uint32
	requests   uint64
}

// New creates a controller in the Off state.
func New(cfg Config) *Controller {
	c := &Controller{
		cfg:    cfg,
		logger: cfg.Logger,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if cfg.SaveDir != "" {
		if abs, err := filepath.Abs(cfg.SaveDir); err == nil {
			c.saveDir = abs
		} else {
			c.saveDir = filepath.Clean(cfg.SaveDir)
		}
	}
	cfg.Metrics.ControllerState(Off.String(), StateNames())
	return c
}

// State may be read from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Requests returns how many autosave requests the controller has issued.
func (c *Controller) Requests() uint64 {
	return c.requests
}

// HandleTraceEvent implements dispatch.Controller.
func (c *Controller) HandleTraceEvent(rec event.Record, _ *event.TraceContext) error {
	switch {
	case rec.Kind == event.ProcessStart || rec.Kind == event.ProcessStop:
		return c.handleProcess(rec)
	case rec.Kind.IsFile():
		return c.handleFile(rec)
	default:
		return ErrUnhandled
	}
}

func (c *Controller) handleProcess(rec event.Record) error {
	name := rec.PathString()
	subject := c.cfg.Subject != "" && event.SameProcess(name, c.cfg.Subject)
	launcher := c.cfg.Launcher != "" && event.SameProcess(name, c.cfg.Launcher)
	var ev Event
	switch {
	case subject && rec.Kind == event.ProcessStart:
		ev = SubjectStart
		if rec.Opcode == event.OpFound {
			ev = SubjectFound
		}
	case subject:
		if c.subjectPID != 0 && rec.PID != c.subjectPID {
			return ErrUnhandled
		}
		ev = SubjectTerminate
	case launcher && rec.Kind == event.ProcessStart:
		ev = LauncherStart
	case launcher:
		ev = LauncherTerminate
	default:
		return ErrUnhandled
	}

	if !c.Fire(ev) {
		return ErrUnhandled
	}
	switch ev {
	case SubjectStart, SubjectFound:
		c.subjectPID = rec.PID
	case SubjectTerminate:
		c.subjectPID = 0
	}
	return nil
}

// Fire applies ev to the current state. It reports whether a transition
// happened.
func (c *Controller) Fire(ev Event) bool {
	from := c.State()
	to, reported, ok := next(from, ev)
	if !ok {
		c.logger.Debug("lifecycle event ignored", "state", from, "event", ev)
		return false
	}

	c.state.Store(int32(to))
	c.cfg.Metrics.ControllerState(to.String(), StateNames())
	c.logger.Info("lifecycle transition", "from", from, "to", to, "event", reported)
	if c.cfg.OnTransition != nil {
		c.cfg.OnTransition(from, to, reported)
	}

	if to == Exited {
		c.requestSave("final")
	}
	return true
}

// next is the transition table. reported is the event handed to
// OnTransition, which differs from ev for the derived launch events.
func next(from State, ev Event) (to State, reported Event, ok bool) {
	switch from {
	case Off:
		switch ev {
		case LauncherStart:
			return Launching, ev, true
		case SubjectStart, SubjectFound:
			return Running, ev, true
		}
	case Launching:
		switch ev {
		case SubjectStart, SubjectFound, LaunchComplete:
			return Running, LaunchComplete, true
		case LauncherTerminate, LaunchAbort:
			return Off, LaunchAbort, true
		}
	case Running:
		if ev == SubjectTerminate {
			return Exited, ev, true
		}
	case Exited:
		switch ev {
		case LauncherStart:
			return Launching, ev, true
		case SubjectStart, SubjectFound:
			return Running, ev, true
		}
	}
	return from, ev, false
}

func (c *Controller) handleFile(rec event.Record) error {
	if c.State() != Running {
		return ErrUnhandled
	}
	switch rec.Kind {
	case event.FileWrite, event.FileCreate, event.FileRename:
	default:
		return ErrUnhandled
	}

	if rec.Truncated() {
		c.logger.Debug("file activity path truncated", "prefix", rec.PathString())
		return ErrUnhandled
	}

	rel, ok := c.relative(rec.PathString())
	if !ok {
		return ErrUnhandled
	}
	if !c.cfg.Filter.Match(rel, false) {
		c.logger.Debug("file activity filtered", "path", rel)
		return ErrUnhandled
	}

	c.requestSave(rel)
	return nil
}

// relative returns path relative to the save dir, or false when it lies
// outside it.
func (c *Controller) relative(path string) (string, bool) {
	if c.saveDir == "" {
		return "", false
	}
	rel, err := filepath.Rel(c.saveDir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (c *Controller) requestSave(reason string) {
	if c.cfg.Saver == nil {
		return
	}
	c.requests++
	c.logger.Debug("autosave requested", "reason", reason, "delay", c.cfg.Delay)
	c.cfg.Saver.RequestCopy(c.cfg.Delay)
}
