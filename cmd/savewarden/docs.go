package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var docsCmd = &cobra.Command{
	Use:    "gen-docs",
	Short:  "Generate savewarden man pages or markdown reference",
	Hidden: true,
	Args:   cobra.NoArgs,
	// Docs generation needs neither config nor logging.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	RunE:              runGenDocs,
}

func init() {
	docsCmd.Flags().String("dir", "docs", "output directory")
	docsCmd.Flags().String("format", "man", "output format (man, markdown or rest)")
}

func runGenDocs(cmd *cobra.Command, _ []string) error {
	dir, _ := cmd.Flags().GetString("dir")       //nolint:errcheck // flag name is hardcoded
	format, _ := cmd.Flags().GetString("format") //nolint:errcheck // flag name is hardcoded

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	root := cmd.Root()
	root.DisableAutoGenTag = true

	switch format {
	case "man":
		header := &doc.GenManHeader{
			Title:   "SAVEWARDEN",
			Section: "1",
			Source:  "savewarden " + version,
			Manual:  "savewarden manual",
		}
		return doc.GenManTree(root, header, dir)
	case "markdown":
		return doc.GenMarkdownTreeCustom(root, dir,
			func(string) string { return "" },
			func(name string) string { return strings.TrimSuffix(filepath.Base(name), ".md") + ".md" },
		)
	case "rest":
		return doc.GenReSTTree(root, dir)
	default:
		return fmt.Errorf("unknown format %q (use man, markdown or rest)", format)
	}
}
