// Package analyzer builds column-level lineage from parsed SQL statements.
// It owns scope construction, symbol resolution with confidence scoring,
// dependency extraction over expression trees, and the per-statement
// orchestration that populates a registry for one script.
package analyzer

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/internal/schema"
	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// Options configures an Analyzer.
type Options struct {
	// Provider supplies known table structures; nil means none.
	Provider schema.Provider
	// Policy is the ambiguity policy; defaults to PolicyWarn.
	Policy Policy
	// KeepWildcards disables SELECT * expansion: wildcards are recorded
	// as opaque "table.*" sources even when schemas are known.
	KeepWildcards bool
	// AllowRedefine permits CREATE over a populated table without
	// CREATE OR REPLACE.
	AllowRedefine bool
	// Logger receives debug/warn output; nil discards.
	Logger *slog.Logger
}

// Analyzer analyzes a script's statements in order against one registry.
// Not safe for concurrent use: one analyzer, one registry, one script.
type Analyzer struct {
	registry        *registry.Registry
	provider        schema.Provider
	policy          Policy
	expandWildcards bool
	allowRedefine   bool
	log             *slog.Logger

	diags []Diagnostic
	stmt  int // current 1-based statement index

	// WITH-clause bindings for the statement being analyzed, keyed by
	// lowercase name. Committed to the registry only when the whole
	// statement succeeds; cteOrder preserves declaration order.
	ctes     map[string]*cteBinding
	cteOrder []string
}

// New creates an analyzer writing to the given registry.
func New(reg *registry.Registry, opts Options) *Analyzer {
	if opts.Policy == "" {
		opts.Policy = PolicyWarn
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{
		registry:        reg,
		provider:        opts.Provider,
		policy:          opts.Policy,
		expandWildcards: !opts.KeepWildcards,
		allowRedefine:   opts.AllowRedefine,
		log:             opts.Logger,
	}
}

// Registry returns the registry this analyzer writes to.
func (a *Analyzer) Registry() *registry.Registry {
	return a.registry
}

// diag records a non-fatal finding against the current statement.
func (a *Analyzer) diag(code, format string, args ...any) {
	d := Diagnostic{Statement: a.stmt, Code: code, Message: fmt.Sprintf(format, args...)}
	a.diags = append(a.diags, d)
	a.log.Debug("diagnostic", "code", code, "statement", a.stmt, "message", d.Message)
}

// StatementResult records one statement's outcome.
type StatementResult struct {
	Index  int // 1-based position in the script
	SQL    string
	Kind   parser.StatementKind
	Target string // created/inserted table, when applicable
	Err    error
}

// Failed reports whether the statement's analysis was aborted.
func (r StatementResult) Failed() bool {
	return r.Err != nil
}

// AnalysisResult is the outcome of analyzing a whole script: the populated
// registry, per-statement results, and accumulated diagnostics.
type AnalysisResult struct {
	Registry    *registry.Registry
	Statements  []StatementResult
	Diagnostics []Diagnostic
}

// Failed returns the statements whose analysis was aborted.
func (r *AnalysisResult) Failed() []StatementResult {
	var failed []StatementResult
	for _, s := range r.Statements {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	return failed
}

// AnalyzeScript splits a script into statements and analyzes each in
// order. A failed statement contributes nothing to the registry but does
// not abort the script: later statements analyze against whatever was
// registered so far.
func (a *Analyzer) AnalyzeScript(script string) *AnalysisResult {
	return a.AnalyzeStatements(parser.SplitScript(script))
}

// AnalyzeStatements analyzes pre-split statements in order.
func (a *Analyzer) AnalyzeStatements(statements []string) *AnalysisResult {
	result := &AnalysisResult{Registry: a.registry}

	for _, sql := range statements {
		a.stmt = a.registry.AdvanceStatement()

		cls := parser.Classify(sql)
		res := StatementResult{
			Index:  a.stmt,
			SQL:    sql,
			Kind:   cls.Kind,
			Target: cls.Target,
		}

		if cls.Kind == parser.KindUnsupported {
			res.Err = &UnsupportedError{Construct: leadingKeyword(sql) + " statement"}
		} else {
			res.Err = a.analyzeStatement(sql)
		}

		if res.Err != nil {
			a.log.Warn("statement failed", "statement", a.stmt, "error", res.Err)
		} else {
			a.log.Debug("statement analyzed", "statement", a.stmt, "kind", string(cls.Kind))
		}

		result.Statements = append(result.Statements, res)
	}

	result.Diagnostics = a.diags
	return result
}

// analyzeStatement parses and dispatches one supported statement. Its
// CTE bindings commit to the registry only on success: a failed statement
// contributes no tables.
func (a *Analyzer) analyzeStatement(sql string) error {
	a.resetCTEs()

	stmt, err := parser.Parse(sql)
	if err != nil {
		return err
	}

	switch s := stmt.(type) {
	case *parser.CreateTableStmt:
		err = a.analyzeCreate(s)
	case *parser.InsertStmt:
		err = a.analyzeInsert(s)
	case *parser.SelectStmt:
		// Bare SELECT registers its CTEs and surfaces diagnostics; the
		// output itself lands in no table.
		_, err = a.analyzeSelect(s)
	default:
		return &UnsupportedError{Construct: leadingKeyword(sql) + " statement"}
	}

	if err != nil {
		a.resetCTEs()
		return err
	}
	a.commitCTEs()
	return nil
}

// leadingKeyword names a statement by its first word, for error messages.
func leadingKeyword(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "empty"
	}
	return strings.ToUpper(fields[0])
}
