package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bamsammich/savewarden/internal/config"
	"github.com/bamsammich/savewarden/internal/filter"
	"github.com/bamsammich/savewarden/internal/ui"
)

var version = "dev"

// globals holds the root flags and what PersistentPreRunE derives from them.
type globals struct {
	verbose     bool
	quiet       bool
	showVersion bool
	logFile     string
	configPath  string

	cfg       config.Config
	logCloser io.Closer
}

var g globals

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd()
	err := rootCmd.Execute()
	if g.logCloser != nil {
		_ = g.logCloser.Close() //nolint:errcheck // closing the log file on exit
	}

	if err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			return exitErr.code
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "savewarden",
		Short: "Back up a game's save directory every time it writes",
		Long: `savewarden watches a launcher and game process, and while the game runs it
copies the save directory to a backup destination a short while after every
write. Bursts of writes collapse into a single backup.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.showVersion {
				fmt.Fprintf(os.Stdout, "savewarden %s\n", version)
				return nil
			}
			return cmd.Help()
		},
	}

	rootCmd.Flags().BoolVar(&g.showVersion, "version", false, "print version and exit")
	rootCmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().
		StringVar(&g.logFile, "log", "", "write structured JSON log to FILE (rotated)")
	rootCmd.PersistentFlags().
		StringVar(&g.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/savewarden/config.toml)")

	rootCmd.AddCommand(
		newRunCmd(),
		newCopyCmd(),
		newFlattenCmd(),
		newVerifyCmd(),
		newHistoryCmd(),
		newStatusCmd(),
		docsCmd,
	)
	return rootCmd
}

// setup loads the config file and installs the process logger.
func setup(cmd *cobra.Command, _ []string) error {
	var err error
	if g.configPath != "" {
		g.cfg, err = config.LoadFile(config.ExpandPath(g.configPath))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		g.cfg, err = config.Load()
		if err != nil {
			slog.Warn("failed to load config", "error", err)
		}
	}

	level := slog.LevelInfo
	switch {
	case g.verbose:
		level = slog.LevelDebug
	case g.quiet:
		level = slog.LevelWarn
	}

	opts := ui.LogOptions{Level: level, File: g.logFile}
	lc := g.cfg.Log
	if !cmd.Flags().Changed("log") && lc.File != nil {
		opts.File = config.ExpandPath(*lc.File)
	}
	if lc.MaxSizeMB != nil {
		opts.MaxSizeMB = *lc.MaxSizeMB
	}
	if lc.MaxBackups != nil {
		opts.MaxBackups = *lc.MaxBackups
	}
	if lc.Compress != nil {
		opts.Compress = *lc.Compress
	}

	logger, closer := ui.NewLogger(opts)
	slog.SetDefault(logger)
	g.logCloser = closer
	return nil
}

// filterFlag is a pflag.Value that adds each occurrence of --include or
// --exclude to a shared filter.Set.
type filterFlag struct {
	set     *filter.Set
	include bool
}

func (*filterFlag) String() string { return "" }
func (*filterFlag) Type() string   { return "pattern" }

func (f *filterFlag) Set(val string) error {
	if f.include {
		return f.set.AddInclude(val)
	}
	return f.set.AddExclude(val)
}

var _ pflag.Value = (*filterFlag)(nil)

// addFilterFlags registers repeatable --include/--exclude flags on cmd.
func addFilterFlags(cmd *cobra.Command, set *filter.Set, what string) {
	cmd.Flags().Var(&filterFlag{set: set, include: true}, "include",
		what+" only paths matching PATTERN (repeatable)")
	cmd.Flags().Var(&filterFlag{set: set}, "exclude",
		"skip paths matching PATTERN (repeatable)")
}

type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}
