package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/autosave"
	"github.com/bamsammich/savewarden/internal/config"
	"github.com/bamsammich/savewarden/internal/engine"
	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/ui"
)

// copySettings are the job options shared by run and copy.
type copySettings struct {
	tool    string
	flatten bool
	delay   time.Duration
	verify  bool
	bwlimit string
	workers int
	force   bool
	filter  *filter.Set
}

func addCopyFlags(cmd *cobra.Command, s *copySettings) {
	cmd.Flags().StringVar(&s.tool, "tool", "", "external replicate tool (default: built-in copier)")
	cmd.Flags().BoolVar(&s.flatten, "flatten", false, "flatten the destination after each copy")
	cmd.Flags().DurationVar(&s.delay, "delay", 0, "debounce delay before copying")
	cmd.Flags().BoolVar(&s.verify, "verify", false, "verify copies with BLAKE3 (built-in copier)")
	cmd.Flags().StringVar(&s.bwlimit, "bwlimit", "", "bandwidth limit, e.g. 50M (built-in copier)")
	cmd.Flags().IntVarP(&s.workers, "workers", "n", 0,
		fmt.Sprintf("copy workers (default %d, built-in copier)", engine.DefaultWorkers))
	cmd.Flags().BoolVar(&s.force, "force", false, "copy files even when size and mtime match")
}

// applyAutosaveDefaults applies config file values for flags not set on the CLI.
func applyAutosaveDefaults(cmd *cobra.Command, ac config.AutosaveConfig, s *copySettings) {
	flags := cmd.Flags()
	if !flags.Changed("tool") && ac.Tool != nil {
		s.tool = config.ExpandPath(*ac.Tool)
	}
	if !flags.Changed("flatten") && ac.Flatten != nil {
		s.flatten = *ac.Flatten
	}
	if !flags.Changed("delay") && ac.Delay != nil {
		s.delay = ac.Delay.Duration
	}
	if !flags.Changed("verify") && ac.Verify != nil {
		s.verify = *ac.Verify
	}
	if !flags.Changed("bwlimit") && ac.BWLimit != nil {
		s.bwlimit = *ac.BWLimit
	}
	if !flags.Changed("workers") && ac.Workers != nil {
		s.workers = *ac.Workers
	}
}

// copier builds the tool copier when a tool is set, else the built-in engine.
//
//nolint:ireturn // factory returns interface by design
func (s *copySettings) copier(logger *slog.Logger) (autosave.Copier, error) {
	if s.tool != "" {
		return autosave.ToolCopier{Path: s.tool}, nil
	}

	var bwLimit int64
	if s.bwlimit != "" {
		n, err := config.ParseSize(s.bwlimit)
		if err != nil {
			return nil, fmt.Errorf("invalid --bwlimit: %w", err)
		}
		bwLimit = n
	}
	var f *filter.Set
	if !s.filter.Empty() {
		f = s.filter
	}
	return engine.NewCopier(engine.Config{
		Workers: s.workers,
		Verify:  s.verify,
		BWLimit: bwLimit,
		Filter:  f,
		Force:   s.force,
		Logger:  logger,
	}), nil
}

func newCopyCmd() *cobra.Command {
	s := &copySettings{}
	s.filter, _ = filter.New(nil, nil) //nolint:errcheck // no patterns to compile

	cmd := &cobra.Command{
		Use:   "copy <source> <destination>",
		Short: "Run one autosave job now",
		Long: `Run a single autosave job: copy the source into the destination through the
same client the watcher uses, optionally flattening the destination afterwards.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyAutosaveDefaults(cmd, g.cfg.Autosave, s)
			return runCopy(cmd, s, args[0], args[1])
		},
	}
	addCopyFlags(cmd, s)
	addFilterFlags(cmd, s.filter, "copy")
	return cmd
}

func runCopy(cmd *cobra.Command, s *copySettings, src, dst string) error {
	logger := slog.Default()

	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	cp, err := s.copier(logger)
	if err != nil {
		return err
	}

	ctx, stop := withSignals(cmd.Context())
	defer stop()

	done := make(chan autosave.Report, 1)
	client := autosave.New(autosave.Config{
		Source:         src,
		Destination:    dst,
		FlattenOnWrite: s.flatten,
		Copier:         cp,
		Logger:         logger,
		OnJobDone:      func(r autosave.Report) { done <- r },
	})
	if err := client.Start(); err != nil {
		return err
	}
	client.RequestCopy(s.delay)

	var report autosave.Report
	select {
	case report = <-done:
	case <-ctx.Done():
		logger.Warn("interrupted, waiting for the running job")
		client.Stop()
		client.Wait()
		select {
		case report = <-done:
		default:
			_ = client.Close() //nolint:errcheck // worker already stopped
			return &exitError{code: 1}
		}
	}
	if err := client.Close(); err != nil {
		return err
	}

	stdout := ui.Inspect(os.Stdout)
	p := ui.NewPresenter(ui.Config{
		Writer: os.Stdout,
		Quiet:  g.quiet,
		Color:  stdout.Color,
		Width:  stdout.Width,
	})
	reports := make(chan autosave.Report, 1)
	reports <- report
	close(reports)
	if err := p.Run(reports); err != nil {
		fmt.Fprintf(os.Stderr, "presenter: %v\n", err)
	}

	if report.Err != nil {
		slog.Error("copy failed", "error", report.Err, "code", report.Code)
		return &exitError{code: 1}
	}
	return nil
}

// withSignals returns a context cancelled on SIGINT or SIGTERM.
func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
