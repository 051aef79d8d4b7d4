package cli

import (
	"encoding/json"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newSourcesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the source tables of a script",
		Long: `List the true sources of the analyzed script: external tables the
script references but never defines, plus base tables that record no
lineage of their own.`,
		Example: `  datatrail sources --script etl.sql`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.analyzeScript(cmd, "")
			if err != nil {
				return err
			}
			defs := result.Registry.SourceTables()

			if a.cfg.Output == "json" {
				type sourceJSON struct {
					Name    string   `json:"name"`
					Kind    string   `json:"kind"`
					Columns []string `json:"columns,omitempty"`
				}
				out := make([]sourceJSON, 0, len(defs))
				for _, def := range defs {
					out = append(out, sourceJSON{Name: def.Name, Kind: string(def.Kind), Columns: def.ColumnNames()})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "Kind", "Known Columns"})
			for _, def := range defs {
				t.AppendRow(table.Row{def.Name, def.Kind, strings.Join(def.ColumnNames(), ", ")})
			}
			t.Render()
			return nil
		},
	}
}
