package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/bamsammich/savewarden/internal/engine"
	"github.com/bamsammich/savewarden/internal/filter"
)

func newVerifyCmd() *cobra.Command {
	var (
		flat    bool
		workers int
	)
	set, _ := filter.New(nil, nil) //nolint:errcheck // no patterns to compile

	cmd := &cobra.Command{
		Use:   "verify <source> <destination>",
		Short: "Compare a save directory with its backup (BLAKE3)",
		Long: `Hash every regular file under <source> and its counterpart under
<destination> with BLAKE3 and report mismatches. Use --flat for a destination
that was flattened after copying.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") && g.cfg.Autosave.Workers != nil {
				workers = *g.cfg.Autosave.Workers
			}
			return runVerify(cmd, args[0], args[1], flat, workers, set)
		},
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "destination holds files flattened to its top level")
	cmd.Flags().IntVarP(&workers, "workers", "n", 0, "hash workers")
	addFilterFlags(cmd, set, "verify")
	return cmd
}

func runVerify(cmd *cobra.Command, src, dst string, flat bool, workers int, set *filter.Set) error {
	ctx, stop := withSignals(cmd.Context())
	defer stop()

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	vcfg := engine.VerifyConfig{
		SrcRoot: src,
		DstRoot: dst,
		Workers: workers,
		Flat:    flat,
	}
	if !set.Empty() {
		vcfg.Filter = set
	}
	if !info.IsDir() {
		vcfg.SrcRoot = filepath.Dir(src)
		vcfg.Only = filepath.Base(src)
	}

	res := engine.Verify(ctx, vcfg)
	for _, ve := range res.Errors {
		slog.Error("verify", "detail", ve.String())
	}
	if !g.quiet {
		fmt.Fprintf(os.Stdout, "verified %d files, %d failed\n", res.Verified, res.Failed)
	}
	if ctx.Err() != nil || res.Failed > 0 {
		return &exitError{code: 1}
	}
	return nil
}
