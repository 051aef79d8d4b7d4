package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/datatrail-labs/datatrail/internal/registry"
)

func newAnalyzeCommand(a *app) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "analyze [script.sql]",
		Short: "Analyze a SQL script and print the lineage registry",
		Long: `Run the lineage analyzer over a SQL script and print every registered
table with its columns, their source columns, and the confidence of
each resolution.`,
		Example: `  # Analyze a script
  datatrail analyze etl.sql

  # With a known schema and strict ambiguity handling
  datatrail analyze etl.sql --schema warehouse.yaml --policy strict

  # JSON registry snapshot
  datatrail analyze etl.sql --output json

  # Re-analyze whenever the script changes
  datatrail analyze etl.sql --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) > 0 {
				path = args[0]
			}
			if watch {
				return a.watchAnalyze(cmd, path)
			}
			return a.runAnalyze(cmd, path)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Re-analyze when the script file changes")

	return cmd
}

func (a *app) runAnalyze(cmd *cobra.Command, path string) error {
	result, err := a.analyzeScript(cmd, path)
	if err != nil {
		return err
	}

	if a.cfg.Output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Registry.Snapshot())
	}

	renderRegistry(cmd.OutOrStdout(), result.Registry)

	failed := 0
	for _, s := range result.Statements {
		if s.Err != nil {
			failed++
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d tables, %d statements analyzed, %d failed\n",
		len(result.Registry.All()), len(result.Statements), failed)
	return nil
}

// renderRegistry prints one row per (table, column) pair.
func renderRegistry(w io.Writer, reg *registry.Registry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Kind", "Column", "Sources", "Flags"})

	for _, def := range reg.All() {
		for _, col := range def.Columns() {
			t.AppendRow(table.Row{def.Name, def.Kind, col.Name, formatSources(col), formatFlags(col)})
		}
		if def.ColumnCount() == 0 {
			t.AppendRow(table.Row{def.Name, def.Kind, "", "", ""})
		}
	}
	t.Render()
}

func formatSources(col *registry.ColumnLineage) string {
	parts := make([]string, 0, len(col.Sources))
	for _, src := range col.Sources {
		parts = append(parts, fmt.Sprintf("%s (%.2f)", src.Qualified(), src.Confidence))
	}
	return strings.Join(parts, ", ")
}

func formatFlags(col *registry.ColumnLineage) string {
	var flags []string
	if col.Aggregate {
		flags = append(flags, "agg:"+col.AggregateFunc)
	}
	if col.GroupBy {
		flags = append(flags, "group-by")
	}
	return strings.Join(flags, " ")
}

// watchAnalyze re-runs the analysis whenever the script changes. The
// parent directory is watched rather than the file itself so editors
// that replace the file on save do not break the watch.
func (a *app) watchAnalyze(cmd *cobra.Command, path string) error {
	if path == "" {
		path = a.cfg.Script
	}
	if path == "" {
		return fmt.Errorf("no script given: pass a path or set --script")
	}

	if err := a.runAnalyze(cmd, path); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "analyze: %v\n", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	base := filepath.Base(path)
	fmt.Fprintf(cmd.ErrOrStderr(), "watching %s for changes\n", path)

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%s changed, re-analyzing\n", base)
			if err := a.runAnalyze(cmd, path); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "analyze: %v\n", err)
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", werr)
		}
	}
}
