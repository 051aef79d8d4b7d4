package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	explainHeaderStyle   = lipgloss.NewStyle().Bold(true)
	explainComputedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	explainSourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	explainWarnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func newExplainCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <table> <column>",
		Short: "Show how a column's value is calculated",
		Long: `Render the derivation chain for a column, one hop per line: computed
columns show their expression, pure copies show the column they copy,
and the chain ends at a terminal source column.`,
		Example: `  datatrail explain t2 doubled --script etl.sql`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.analyzeScript(cmd, "")
			if err != nil {
				return err
			}

			lines, err := a.resolver(result).ExplainCalculation(args[0], args[1])
			if err != nil {
				return err
			}

			if a.cfg.Output == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Table  string   `json:"table"`
					Column string   `json:"column"`
					Chain  []string `json:"chain"`
				}{args[0], args[1], lines})
			}

			fmt.Fprintln(cmd.OutOrStdout(),
				explainHeaderStyle.Render(fmt.Sprintf("Calculation chain for %s.%s:", args[0], args[1])))
			for _, line := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), styleExplainLine(line))
			}
			return nil
		},
	}
}

func styleExplainLine(line string) string {
	switch {
	case strings.HasSuffix(line, "(computed)") || strings.Contains(line, "(computed) ["):
		return explainComputedStyle.Render(line)
	case strings.HasSuffix(line, "(source)"):
		return explainSourceStyle.Render(line)
	case strings.HasSuffix(line, "(cycle)") || strings.Contains(line, "max depth"):
		return explainWarnStyle.Render(line)
	default:
		return line
	}
}
