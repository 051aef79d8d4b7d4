package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newImpactCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <table> <column>",
		Short: "Find downstream columns affected by a change",
		Long: `List every registered column that transitively depends on the given
column, grouped by table. Use this before changing or dropping a
source column to see what breaks.`,
		Example: `  datatrail impact orders amount --script etl.sql`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.analyzeScript(cmd, "")
			if err != nil {
				return err
			}

			impact, err := a.resolver(result).FindImpact(args[0], args[1])
			if err != nil {
				return err
			}
			for _, d := range impact.Diagnostics {
				fmt.Fprintln(cmd.ErrOrStderr(), d.String())
			}

			if a.cfg.Output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(impact.Affected)
			}

			if len(impact.Affected) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No downstream columns depend on %s.%s\n",
					impact.Table, impact.Column)
				return nil
			}

			tables := make([]string, 0, len(impact.Affected))
			for name := range impact.Affected {
				tables = append(tables, name)
			}
			sort.Strings(tables)

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Affected Columns"})
			for _, name := range tables {
				t.AppendRow(table.Row{name, strings.Join(impact.Affected[name], ", ")})
			}
			t.Render()
			return nil
		},
	}
}
