package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/autosave"
	"github.com/bamsammich/savewarden/internal/config"
	"github.com/bamsammich/savewarden/internal/dispatch"
	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/fsm"
	"github.com/bamsammich/savewarden/internal/history"
	"github.com/bamsammich/savewarden/internal/metrics"
	"github.com/bamsammich/savewarden/internal/queue"
	"github.com/bamsammich/savewarden/internal/trace"
	"github.com/bamsammich/savewarden/internal/ui"
)

// DefaultDelay is the debounce delay when neither flag nor config sets one.
const DefaultDelay = 2 * time.Second

type runSettings struct {
	copySettings

	launcher     string
	process      string
	saveDir      string
	destination  string
	pollInterval time.Duration
	capacity     int
	backoff      string
	textfile     string
	historyPath  string
	noHistory    bool
	trigger      *filter.Set
}

func newRunCmd() *cobra.Command {
	s := &runSettings{}
	s.trigger, _ = filter.New(nil, nil) //nolint:errcheck // no patterns to compile

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the game and back up its saves while it runs",
		Long: `Watch for the launcher and game processes. While the game runs, every write
under the save directory that passes the trigger filter schedules a backup
after the debounce delay; the game exiting triggers a final backup.

Runs until interrupted (SIGINT or SIGTERM).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.resolve(cmd, g.cfg); err != nil {
				return err
			}
			return runWatch(cmd.Context(), s)
		},
	}

	addCopyFlags(cmd, &s.copySettings)
	f := cmd.Flags()
	f.StringVar(&s.launcher, "launcher", "", "launcher process name")
	f.StringVar(&s.process, "process", "", "game process name")
	f.StringVar(&s.saveDir, "save-dir", "", "save directory to watch")
	f.StringVarP(&s.destination, "dest", "d", "", "backup destination directory")
	f.DurationVar(&s.pollInterval, "poll-interval", 0, "process table poll period (default 500ms)")
	f.IntVar(&s.capacity, "capacity", 0,
		fmt.Sprintf("event queue capacity (default %d)", queue.DefaultCapacity))
	f.StringVar(&s.backoff, "backoff", "", "dispatcher idle strategy: yield, spin or sleep")
	f.StringVar(&s.textfile, "metrics-textfile", "", "write Prometheus metrics to FILE after each job")
	f.StringVar(&s.historyPath, "history", "", "job history database (default: state dir)")
	f.BoolVar(&s.noHistory, "no-history", false, "do not record jobs")
	addFilterFlags(cmd, s.trigger, "trigger on")
	return cmd
}

// resolve merges config file values under the flags and validates the result.
//
//nolint:gocyclo // one branch per setting
func (s *runSettings) resolve(cmd *cobra.Command, cfg config.Config) error {
	applyAutosaveDefaults(cmd, cfg.Autosave, &s.copySettings)
	flags := cmd.Flags()

	wc := cfg.Watch
	if !flags.Changed("launcher") && wc.Launcher != nil {
		s.launcher = *wc.Launcher
	}
	if !flags.Changed("process") && wc.Process != nil {
		s.process = *wc.Process
	}
	if !flags.Changed("save-dir") && wc.SaveDir != nil {
		s.saveDir = *wc.SaveDir
	}
	if !flags.Changed("poll-interval") && wc.PollInterval != nil {
		s.pollInterval = wc.PollInterval.Duration
	}
	if !flags.Changed("include") {
		for _, p := range wc.Include {
			if err := s.trigger.AddInclude(p); err != nil {
				return fmt.Errorf("config watch.include: %w", err)
			}
		}
	}
	if !flags.Changed("exclude") {
		for _, p := range wc.Exclude {
			if err := s.trigger.AddExclude(p); err != nil {
				return fmt.Errorf("config watch.exclude: %w", err)
			}
		}
	}

	if !flags.Changed("dest") && cfg.Autosave.Destination != nil {
		s.destination = *cfg.Autosave.Destination
	}
	if !flags.Changed("delay") && cfg.Autosave.Delay == nil {
		s.delay = DefaultDelay
	}
	if !flags.Changed("capacity") && cfg.Dispatch.Capacity != nil {
		s.capacity = *cfg.Dispatch.Capacity
	}
	if !flags.Changed("backoff") && cfg.Dispatch.Backoff != nil {
		s.backoff = *cfg.Dispatch.Backoff
	}
	if !flags.Changed("metrics-textfile") && cfg.Metrics.Textfile != nil {
		s.textfile = *cfg.Metrics.Textfile
	}
	if !flags.Changed("history") && cfg.Metrics.History != nil {
		s.historyPath = *cfg.Metrics.History
	}

	switch {
	case s.process == "":
		return errors.New("no game process: set --process or watch.process")
	case s.saveDir == "":
		return errors.New("no save directory: set --save-dir or watch.save_dir")
	case s.destination == "":
		return errors.New("no destination: set --dest or autosave.destination")
	}

	s.saveDir = config.ExpandPath(s.saveDir)
	s.destination = config.ExpandPath(s.destination)
	s.textfile = config.ExpandPath(s.textfile)
	if s.historyPath == "" {
		s.historyPath = filepath.Join(config.StateDir(), history.FileName)
	}
	s.historyPath = config.ExpandPath(s.historyPath)

	info, err := os.Stat(s.saveDir)
	if err != nil {
		return fmt.Errorf("save directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("save directory %s is not a directory", s.saveDir)
	}

	// Backups written under the save dir would trigger further backups.
	absSave, err := filepath.Abs(s.saveDir)
	if err != nil {
		return err
	}
	absDest, err := filepath.Abs(s.destination)
	if err != nil {
		return err
	}
	if rel, err := filepath.Rel(absSave, absDest); err == nil && filepath.IsLocal(rel) {
		return fmt.Errorf("destination %s is inside the save directory", s.destination)
	}
	return nil
}

//nolint:revive // cognitive-complexity: wires the whole pipeline and its shutdown
func runWatch(parent context.Context, s *runSettings) error {
	logger := slog.Default()
	ctx, stop := withSignals(parent)
	defer stop()

	backoff := dispatch.Backoff(dispatch.YieldBackoff{})
	if s.backoff != "" {
		b, err := dispatch.ParseBackoff(s.backoff)
		if err != nil {
			return err
		}
		backoff = b
	}

	cp, err := s.copier(logger)
	if err != nil {
		return err
	}

	reg := metrics.New(metrics.DefaultNamespace)
	flushMetrics := func() {
		if s.textfile == "" {
			return
		}
		if err := reg.WriteTextfile(s.textfile); err != nil {
			logger.Warn("failed to write metrics textfile", "path", s.textfile, "error", err)
		}
	}

	var store *history.Store
	if !s.noHistory {
		store, err = history.Open(s.historyPath)
		if err != nil {
			logger.Warn("job history disabled", "path", s.historyPath, "error", err)
			store = nil
		}
	}

	stdout := ui.Inspect(os.Stdout)
	presenter := ui.NewPresenter(ui.Config{
		Writer: os.Stdout,
		Quiet:  g.quiet,
		Color:  stdout.Color,
		Width:  stdout.Width,
	})
	reports := make(chan autosave.Report, 64)
	var presenterWg sync.WaitGroup
	presenterWg.Add(1)
	go func() {
		defer presenterWg.Done()
		if err := presenter.Run(reports); err != nil {
			fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
		}
	}()

	var failed atomic.Int64
	client := autosave.New(autosave.Config{
		Source:         s.saveDir,
		Destination:    s.destination,
		FlattenOnWrite: s.flatten,
		Copier:         cp,
		Logger:         logger,
		Metrics:        reg,
		OnError: func(code int, err error) {
			logger.Error("autosave failed", "code", code, "error", err)
		},
		OnJobDone: func(r autosave.Report) {
			if r.Err != nil {
				failed.Add(1)
			}
			if store != nil {
				if _, err := store.Record(context.Background(), history.FromReport(r)); err != nil {
					logger.Warn("failed to record job", "error", err)
				}
			}
			flushMetrics()
			reports <- r
		},
	})

	ctrl := fsm.New(fsm.Config{
		Launcher: s.launcher,
		Subject:  s.process,
		SaveDir:  s.saveDir,
		Filter:   s.trigger,
		Delay:    s.delay,
		Saver:    client,
		Logger:   logger,
		Metrics:  reg,
	})

	sources := []trace.Source{
		&trace.FSSource{Root: s.saveDir, Logger: logger},
		&trace.ProcSource{
			Names:    nonEmpty(s.launcher, s.process),
			Interval: s.pollInterval,
			Logger:   logger,
		},
	}
	session := uuid.NewString()
	provider := trace.New(session, sources...)
	provider.SetLogger(logger)

	dopts := []dispatch.Option{
		dispatch.WithBackoff(backoff),
		dispatch.WithLogger(logger),
		dispatch.WithMetrics(reg),
		dispatch.WithTraceContext(provider.TraceContext()),
	}
	if s.capacity > 0 {
		dopts = append(dopts, dispatch.WithCapacity(s.capacity))
	}
	dispatcher := dispatch.New(ctrl, dopts...)
	provider.EnableDispatchTo(dispatcher)

	if err := client.Start(); err != nil {
		return err
	}
	if err := dispatcher.Start(); err != nil {
		_ = client.Close() //nolint:errcheck // already failing
		return err
	}
	if err := provider.Start(ctx); err != nil {
		dispatcher.Stop()
		_ = client.Close() //nolint:errcheck // already failing
		return err
	}

	if err := config.WriteRunState(config.RunState{
		PID:         os.Getpid(),
		Session:     session,
		StartedAt:   provider.TraceContext().StartedAt,
		SaveDir:     s.saveDir,
		Destination: s.destination,
	}); err != nil {
		logger.Warn("failed to write run state", "error", err)
	}
	defer config.RemoveRunState()

	logger.Info("watching",
		"process", s.process,
		"launcher", s.launcher,
		"save_dir", s.saveDir,
		"dest", s.destination,
		"delay", s.delay,
		"session", session,
	)

	<-ctx.Done()
	logger.Info("shutting down", "state", ctrl.State())

	provider.Stop()
	dispatcher.Stop()
	if err := client.Close(); err != nil {
		logger.Warn("autosave client close", "error", err)
	}
	close(reports)
	presenterWg.Wait()

	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("history close", "error", err)
		}
	}
	flushMetrics()

	st := dispatcher.Stats()
	logger.Debug("dispatch stats",
		"enqueued", st.Enqueued, "dropped", st.Dropped,
		"handled", st.Handled, "failed", st.Failed,
	)
	if summary := presenter.Summary(); summary != "" {
		fmt.Fprintln(os.Stderr, summary)
	}

	if failed.Load() > 0 {
		return &exitError{code: 1}
	}
	return nil
}

func nonEmpty(names ...string) []string {
	out := names[:0:0]
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}
