package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/flatten"
)

func newFlattenCmd() *cobra.Command {
	var (
		into   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "flatten <dir>",
		Short: "Move every file below a directory up to its top level",
		Long: `Move every regular file found below <dir> directly into <dir> (or --into),
removing the emptied subdirectories. When two files share a name, the one
visited last in lexicographic depth-first order wins.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			root := args[0]
			target := into
			if target == "" {
				target = root
			}

			res := flatten.Flatten(root, target,
				flatten.WithLogger(slog.Default()),
				flatten.WithDryRun(dryRun),
			)
			for _, err := range res.Errors {
				slog.Error("flatten", "error", err)
			}

			verb := "moved"
			if dryRun {
				verb = "would move"
			}
			if !g.quiet {
				fmt.Fprintf(os.Stdout, "%s %d files, removed %d directories\n",
					verb, res.FilesMoved, res.DirsRemoved)
			}
			if len(res.Errors) > 0 {
				return &exitError{code: 1}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&into, "into", "", "move files into DIR instead of <dir>")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would move without changing anything")
	return cmd
}
