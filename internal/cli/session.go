package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datatrail-labs/datatrail/internal/analyzer"
	"github.com/datatrail-labs/datatrail/internal/lineage"
	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/internal/schema"
)

// provider builds the schema provider selected by config: a live
// database when --db-driver is set, a YAML file when --schema is set,
// nil otherwise.
func (a *app) provider(cmd *cobra.Command) (schema.Provider, error) {
	if a.cfg.DBDriver != "" {
		return schema.Open(cmd.Context(), a.cfg.DBDriver, a.cfg.DBDSN)
	}
	if a.cfg.Schema != "" {
		return schema.LoadFile(a.cfg.Schema)
	}
	return nil, nil
}

// analyzeScript reads and analyzes the SQL script at path, falling back
// to the configured script when path is empty. Failed statements and
// diagnostics are reported on stderr; the partial result is still
// returned so queries can run against whatever was registered.
func (a *app) analyzeScript(cmd *cobra.Command, path string) (*analyzer.AnalysisResult, error) {
	if path == "" {
		path = a.cfg.Script
	}
	if path == "" {
		return nil, fmt.Errorf("no script given: pass a path or set --script")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}

	policy, err := analyzer.ParsePolicy(a.cfg.Policy)
	if err != nil {
		return nil, err
	}
	prov, err := a.provider(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	an := analyzer.New(registry.New(), analyzer.Options{
		Provider:      prov,
		Policy:        policy,
		KeepWildcards: a.cfg.KeepWildcards,
		AllowRedefine: a.cfg.AllowRedefine,
		Logger:        a.log,
	})
	result := an.AnalyzeScript(string(data))

	for _, s := range result.Statements {
		if s.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "statement %d failed: %v\n", s.Index, s.Err)
		}
	}
	for _, d := range result.Diagnostics {
		fmt.Fprintln(cmd.ErrOrStderr(), d.String())
	}
	return result, nil
}

func (a *app) resolver(result *analyzer.AnalysisResult) *lineage.Resolver {
	return lineage.New(result.Registry, a.cfg.MaxDepth)
}
