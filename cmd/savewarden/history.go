package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/config"
	"github.com/bamsammich/savewarden/internal/history"
	"github.com/bamsammich/savewarden/internal/ui"
)

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		path  string
	)
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Show recent autosave jobs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("path") {
				path = filepath.Join(config.StateDir(), history.FileName)
				if g.cfg.Metrics.History != nil {
					path = *g.cfg.Metrics.History
				}
			}
			path = config.ExpandPath(path)
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("no job history at %s: %w", path, err)
			}

			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			jobs, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(os.Stdout, ui.FormatHistory(jobs, ui.Inspect(os.Stdout).Color))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show (0 for all)")
	cmd.Flags().StringVar(&path, "path", "", "history database (default: state dir)")
	return cmd
}
