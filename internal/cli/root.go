// Package cli provides the command-line interface for datatrail.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/datatrail-labs/datatrail/internal/cli/config"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// app carries the loaded config and logger shared by all commands.
type app struct {
	cfg *config.Config
	log *slog.Logger
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	a := &app{}
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "datatrail",
		Short: "DataTrail - SQL column-level lineage",
		Long: `DataTrail analyzes SQL scripts and computes column-level data lineage.

For every table a script creates or populates it records which source
columns each output column derives from, with a confidence score per
edge, then answers trace, impact, and explain queries over the result.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			a.cfg = cfg

			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			a.log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
SQL column-level lineage
`)

	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./datatrail.yaml)")
	rootCmd.PersistentFlags().String("script", "", "SQL script to analyze")
	rootCmd.PersistentFlags().String("schema", "", "YAML schema file (tables: {name: [cols...]})")
	rootCmd.PersistentFlags().String("policy", "", "ambiguity policy (strict|warn|infer)")
	rootCmd.PersistentFlags().String("db-driver", "", "load schemas from a live database (duckdb|postgres)")
	rootCmd.PersistentFlags().String("db-dsn", "", "connection string for --db-driver")
	rootCmd.PersistentFlags().Int("max-depth", 0, "maximum lineage traversal depth")
	rootCmd.PersistentFlags().Bool("keep-wildcards", false, "record SELECT * opaquely instead of expanding known schemas")
	rootCmd.PersistentFlags().Bool("allow-redefine", false, "permit CREATE over an existing populated table")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output format (table|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"table", "json"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("policy", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"strict", "warn", "infer"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(newAnalyzeCommand(a))
	rootCmd.AddCommand(newTraceCommand(a))
	rootCmd.AddCommand(newImpactCommand(a))
	rootCmd.AddCommand(newExplainCommand(a))
	rootCmd.AddCommand(newSourcesCommand(a))
	rootCmd.AddCommand(newVersionCommand(Version))

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
