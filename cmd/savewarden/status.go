package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/config"
	"github.com/bamsammich/savewarden/internal/ui"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Show whether a watcher is running",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			st, err := config.ReadRunState()
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(os.Stdout, "not running")
				return &exitError{code: 1}
			}
			if err != nil {
				return fmt.Errorf("read run state: %w", err)
			}
			if !alive(st.PID) {
				fmt.Fprintf(os.Stdout, "not running (stale state for pid %d)\n", st.PID)
				config.RemoveRunState()
				return &exitError{code: 1}
			}

			fmt.Fprintf(os.Stdout, "running  pid %d  up %s\n", st.PID,
				ui.FormatDuration(time.Since(st.StartedAt).Truncate(time.Second)))
			fmt.Fprintf(os.Stdout, "  session  %s\n", st.Session)
			fmt.Fprintf(os.Stdout, "  saves    %s\n", st.SaveDir)
			fmt.Fprintf(os.Stdout, "  backup   %s\n", st.Destination)
			return nil
		},
	}
}
