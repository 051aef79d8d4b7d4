package analyzer

import (
	"fmt"
	"strings"
)

// UnknownAliasError reports a qualified column reference whose table
// qualifier is not in scope.
type UnknownAliasError struct {
	Alias  string
	Column string
}

func (e *UnknownAliasError) Error() string {
	return fmt.Sprintf("unknown table alias %q in reference %s.%s", e.Alias, e.Alias, e.Column)
}

// AmbiguousColumnError reports an unqualified column that matches more than
// one table in scope under the STRICT policy.
type AmbiguousColumnError struct {
	Column     string
	Candidates []string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("ambiguous column %q: found in tables %s; qualify the column to disambiguate",
		e.Column, strings.Join(e.Candidates, ", "))
}

// ColumnNotFoundError reports an unqualified column that no table's known
// schema contains, under the STRICT policy.
type ColumnNotFoundError struct {
	Column string
	Tables []string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q not found in any table in scope (%s)",
		e.Column, strings.Join(e.Tables, ", "))
}

// DuplicateTableError reports a CREATE statement whose target already
// exists as a populated base table.
type DuplicateTableError struct {
	Table       string
	DefinedAt   int
	RedefinedAt int
}

func (e *DuplicateTableError) Error() string {
	return fmt.Sprintf("table %q already defined at statement %d, redefined at statement %d",
		e.Table, e.DefinedAt, e.RedefinedAt)
}

// UnknownTargetError reports an INSERT whose target table was never
// created or registered.
type UnknownTargetError struct {
	Table string
}

func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("insert target table %q not found; create the table before inserting into it", e.Table)
}

// ColumnCountError reports an INSERT whose SELECT output arity does not
// match the target column count.
type ColumnCountError struct {
	Table    string
	Expected int
	Actual   int
}

func (e *ColumnCountError) Error() string {
	return fmt.Sprintf("column count mismatch inserting into %q: target has %d columns, select produces %d",
		e.Table, e.Expected, e.Actual)
}

// UnsupportedError reports a construct the analyzer does not handle, such
// as window functions or UPDATE/DELETE statements.
type UnsupportedError struct {
	Construct string
}

func (e *UnsupportedError) Error() string {
	return "unsupported construct: " + e.Construct
}

// Diagnostic is a non-fatal finding recorded during analysis: ambiguity
// fallbacks, auto-registered external tables, truncated traversals.
type Diagnostic struct {
	Statement int    // 1-based statement index, 0 when not statement-bound
	Code      string // stable machine-readable code
	Message   string
}

// Diagnostic codes.
const (
	DiagAmbiguousColumn = "ambiguous_column"
	DiagColumnFallback  = "column_fallback"
	DiagExternalTable   = "external_table"
	DiagShadowedTable   = "shadowed_table"
	DiagOpaqueWildcard  = "opaque_wildcard"
	DiagCyclicLineage   = "cyclic_lineage"
	DiagMaxDepth        = "max_depth_exceeded"
)

func (d Diagnostic) String() string {
	if d.Statement > 0 {
		return fmt.Sprintf("[%s] statement %d: %s", d.Code, d.Statement, d.Message)
	}
	return fmt.Sprintf("[%s] %s", d.Code, d.Message)
}
