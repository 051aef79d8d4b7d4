package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datatrail-labs/datatrail/internal/lineage"
)

func newTraceCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <table> <column>",
		Short: "Trace a column back to its ultimate sources",
		Long: `Follow every lineage edge from the given column back to terminal
source columns, printing one path per source branch. Cyclic and
depth-truncated branches are flagged rather than dropped.`,
		Example: `  # Trace a column through the configured script
  datatrail trace t2 doubled --script etl.sql

  # Limit traversal depth
  datatrail trace t2 doubled --script etl.sql --max-depth 10`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.analyzeScript(cmd, "")
			if err != nil {
				return err
			}

			trace, err := a.resolver(result).TraceToSource(args[0], args[1])
			if err != nil {
				return err
			}
			for _, d := range trace.Diagnostics {
				fmt.Fprintln(cmd.ErrOrStderr(), d.String())
			}

			if a.cfg.Output == "json" {
				return traceJSON(cmd, trace)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Lineage for %s.%s (%d paths):\n",
				trace.Table, trace.Column, len(trace.Paths))
			for i, path := range trace.Paths {
				fmt.Fprintf(cmd.OutOrStdout(), "  %d. %s (hops: %d)\n", i+1, path.String(), path.HopCount())
			}
			return nil
		},
	}
}

func traceJSON(cmd *cobra.Command, trace *lineage.Trace) error {
	type pathJSON struct {
		Path      string `json:"path"`
		Hops      int    `json:"hops"`
		Cyclic    bool   `json:"cyclic,omitempty"`
		Truncated bool   `json:"truncated,omitempty"`
	}
	out := struct {
		Table  string     `json:"table"`
		Column string     `json:"column"`
		Paths  []pathJSON `json:"paths"`
	}{Table: trace.Table, Column: trace.Column, Paths: make([]pathJSON, 0, len(trace.Paths))}

	for _, p := range trace.Paths {
		out.Paths = append(out.Paths, pathJSON{
			Path:      p.String(),
			Hops:      p.HopCount(),
			Cyclic:    p.Cyclic,
			Truncated: p.Truncated,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
