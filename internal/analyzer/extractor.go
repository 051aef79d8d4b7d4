package analyzer

import (
	"fmt"
	"strings"

	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// aggregateFunctions are the aggregate calls that mark a column as
// aggregated rather than contributing structure of their own.
var aggregateFunctions = map[string]bool{
	"SUM":   true,
	"AVG":   true,
	"MIN":   true,
	"MAX":   true,
	"COUNT": true,
}

// analyzeSelect extracts the output column lineages of a complete SELECT
// statement, registering any WITH-clause CTEs first.
func (a *Analyzer) analyzeSelect(stmt *parser.SelectStmt) ([]*registry.ColumnLineage, error) {
	if stmt.With != nil {
		if err := a.registerCTEs(stmt.With); err != nil {
			return nil, err
		}
	}
	return a.extractBody(stmt.Body)
}

// cteBinding is one WITH-clause table, visible only to the statement
// being analyzed. A binding whose name collides with an already
// registered table shadows it for the statement and never reaches the
// registry; references through it flatten like a derived table.
type cteBinding struct {
	def      *registry.TableDefinition
	shadowed bool
}

// registerCTEs analyzes each CTE in declaration order, so a later CTE can
// reference an earlier one, and binds them to the current statement.
// Non-shadowing bindings commit to the registry when the statement
// succeeds, so downstream traces flow through them like any other table.
func (a *Analyzer) registerCTEs(with *parser.WithClause) error {
	for _, cte := range with.CTEs {
		cols, err := a.analyzeSelect(cte.Select)
		if err != nil {
			return fmt.Errorf("analyzing CTE %q: %w", cte.Name, err)
		}

		if len(cte.Columns) > 0 {
			if len(cte.Columns) != len(cols) {
				return &ColumnCountError{Table: cte.Name, Expected: len(cte.Columns), Actual: len(cols)}
			}
			for i, name := range cte.Columns {
				cols[i].Name = name
			}
		}

		def := registry.NewTableDefinition(cte.Name, registry.KindCTE)
		for _, col := range cols {
			def.AddColumn(col)
		}

		shadowed := false
		if existing, ok := a.registry.Get(cte.Name); ok && existing.Kind != registry.KindCTE {
			shadowed = true
			a.diag(DiagShadowedTable, "CTE %q shadows table %q for this statement", cte.Name, existing.Name)
		}

		key := strings.ToLower(cte.Name)
		if a.ctes == nil {
			a.ctes = make(map[string]*cteBinding)
		}
		if _, ok := a.ctes[key]; !ok {
			a.cteOrder = append(a.cteOrder, key)
		}
		a.ctes[key] = &cteBinding{def: def, shadowed: shadowed}
	}
	return nil
}

// lookupCTE finds a current-statement CTE binding by name.
func (a *Analyzer) lookupCTE(name string) (*cteBinding, bool) {
	b, ok := a.ctes[strings.ToLower(name)]
	return b, ok
}

// resetCTEs discards the current statement's bindings.
func (a *Analyzer) resetCTEs() {
	a.ctes = nil
	a.cteOrder = nil
}

// commitCTEs registers the statement's CTEs for downstream tracing.
// Shadowing bindings stay statement-local so the displaced table's
// definition and lineage survive; a name claimed by a non-CTE table
// during the statement is likewise left alone.
func (a *Analyzer) commitCTEs() {
	for _, key := range a.cteOrder {
		b := a.ctes[key]
		if b.shadowed {
			continue
		}
		if existing, ok := a.registry.Get(b.def.Name); ok && existing.Kind != registry.KindCTE {
			continue
		}
		def := a.registry.Replace(b.def.Name, registry.KindCTE)
		for _, col := range b.def.Columns() {
			def.AddColumn(col)
		}
	}
	a.resetCTEs()
}

// extractBody extracts a SELECT body, merging set-operation branches
// positionally: a UNION column's lineage accumulates both branches'
// sources under the left branch's column name.
func (a *Analyzer) extractBody(body *parser.SelectBody) ([]*registry.ColumnLineage, error) {
	cols, err := a.extractCore(body.Left)
	if err != nil {
		return nil, err
	}

	if body.Right != nil {
		right, err := a.extractBody(body.Right)
		if err != nil {
			return nil, err
		}
		n := len(cols)
		if len(right) < n {
			n = len(right)
		}
		for i := 0; i < n; i++ {
			cols[i].MergeFrom(right[i])
		}
	}

	return cols, nil
}

// extractCore extracts one SELECT core: scope, item lineages, wildcard
// expansion, and GROUP BY marking.
func (a *Analyzer) extractCore(core *parser.SelectCore) ([]*registry.ColumnLineage, error) {
	scope, err := a.buildScope(core)
	if err != nil {
		return nil, err
	}

	var cols []*registry.ColumnLineage
	var items []parser.SelectItem // aligned with cols, zero value for expanded stars

	for _, item := range core.Columns {
		switch {
		case item.Star:
			for _, entry := range scope.Entries() {
				expanded := a.expandStar(entry)
				cols = append(cols, expanded...)
				for range expanded {
					items = append(items, parser.SelectItem{})
				}
			}

		case item.TableStar != "":
			entry, ok := scope.Lookup(item.TableStar)
			if !ok {
				return nil, &UnknownAliasError{Alias: item.TableStar, Column: "*"}
			}
			expanded := a.expandStar(entry)
			cols = append(cols, expanded...)
			for range expanded {
				items = append(items, parser.SelectItem{})
			}

		default:
			col, err := a.extractItem(scope, item, len(cols))
			if err != nil {
				return nil, err
			}
			cols = append(cols, col)
			items = append(items, item)
		}
	}

	a.markGroupBy(core.GroupBy, items, cols)

	return cols, nil
}

// expandStar expands one scope entry's wildcard into per-column lineages.
// Without a known schema the wildcard collapses into a single opaque
// "table.*" source.
func (a *Analyzer) expandStar(entry *ScopeEntry) []*registry.ColumnLineage {
	if entry.SchemaKnown() && a.expandWildcards {
		cols := make([]*registry.ColumnLineage, 0, len(entry.Columns))
		for _, name := range entry.Columns {
			col := &registry.ColumnLineage{Name: name}
			for _, src := range a.entrySources(entry, name, 1.0) {
				col.AddSource(src)
			}
			cols = append(cols, col)
		}
		return cols
	}

	a.diag(DiagOpaqueWildcard, "cannot expand %s.*: no known schema; recording opaque wildcard source", entry.Alias)
	col := &registry.ColumnLineage{Name: "*"}
	col.AddSource(registry.ColumnSource{Table: entry.Def.Name, Column: "*", Confidence: 1.0})
	return []*registry.ColumnLineage{col}
}

// extractItem builds the lineage for one SELECT-list expression.
func (a *Analyzer) extractItem(scope *Scope, item parser.SelectItem, index int) (*registry.ColumnLineage, error) {
	name := item.OutputName()
	if name == "" {
		name = inferColumnName(item.Expr, index)
	}

	col := &registry.ColumnLineage{Name: name}
	if err := a.collectSources(scope, item.Expr, col); err != nil {
		return nil, err
	}

	switch e := item.Expr.(type) {
	case *parser.ColumnRef:
		// Direct passthrough: no expression recorded.

	case *parser.FuncCall:
		if aggregateFunctions[e.Name] {
			col.Aggregate = true
			col.AggregateFunc = e.Name
			if e.Distinct {
				col.AggregateFunc = e.Name + " DISTINCT"
			}
		}
		col.Expression = parser.Render(e)

	default:
		col.Expression = parser.Render(item.Expr)
	}

	return col, nil
}

// collectSources walks an expression tree, resolving every column
// reference leaf and appending its sources to the lineage.
func (a *Analyzer) collectSources(scope *Scope, expr parser.Expr, col *registry.ColumnLineage) error {
	switch e := expr.(type) {
	case nil:
		return nil

	case *parser.ColumnRef:
		resolutions, err := a.resolveColumn(scope, e)
		if err != nil {
			return err
		}
		for _, res := range resolutions {
			for _, src := range a.entrySources(res.Entry, res.Column, res.Confidence) {
				col.AddSource(src)
			}
		}
		return nil

	case *parser.Literal, *parser.StarExpr:
		return nil

	case *parser.BinaryExpr:
		if err := a.collectSources(scope, e.Left, col); err != nil {
			return err
		}
		return a.collectSources(scope, e.Right, col)

	case *parser.UnaryExpr:
		return a.collectSources(scope, e.Expr, col)

	case *parser.ParenExpr:
		return a.collectSources(scope, e.Expr, col)

	case *parser.CastExpr:
		return a.collectSources(scope, e.Expr, col)

	case *parser.FuncCall:
		if e.Over {
			return &UnsupportedError{Construct: "window function " + e.Name + "() OVER"}
		}
		for _, arg := range e.Args {
			if err := a.collectSources(scope, arg, col); err != nil {
				return err
			}
		}
		return nil

	case *parser.CaseExpr:
		if err := a.collectSources(scope, e.Operand, col); err != nil {
			return err
		}
		for _, when := range e.Whens {
			if err := a.collectSources(scope, when.Condition, col); err != nil {
				return err
			}
			if err := a.collectSources(scope, when.Result, col); err != nil {
				return err
			}
		}
		return a.collectSources(scope, e.Else, col)

	case *parser.InExpr:
		if err := a.collectSources(scope, e.Expr, col); err != nil {
			return err
		}
		for _, v := range e.Values {
			if err := a.collectSources(scope, v, col); err != nil {
				return err
			}
		}
		if e.Query != nil {
			return a.mergeSubquerySources(e.Query, col)
		}
		return nil

	case *parser.BetweenExpr:
		if err := a.collectSources(scope, e.Expr, col); err != nil {
			return err
		}
		if err := a.collectSources(scope, e.Low, col); err != nil {
			return err
		}
		return a.collectSources(scope, e.High, col)

	case *parser.IsNullExpr:
		return a.collectSources(scope, e.Expr, col)

	case *parser.LikeExpr:
		if err := a.collectSources(scope, e.Expr, col); err != nil {
			return err
		}
		return a.collectSources(scope, e.Pattern, col)

	case *parser.SubqueryExpr:
		return a.mergeSubquerySources(e.Select, col)

	case *parser.ExistsExpr:
		return a.mergeSubquerySources(e.Select, col)

	default:
		return nil
	}
}

// mergeSubquerySources analyzes a scalar subquery independently and folds
// its first output column's sources into the lineage. The trace points
// through to the subquery's own sources, flattened one level, not to the
// subquery as a table.
func (a *Analyzer) mergeSubquerySources(sel *parser.SelectStmt, col *registry.ColumnLineage) error {
	cols, err := a.analyzeSelect(sel)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	for _, src := range cols[0].Sources {
		col.AddSource(src)
	}
	return nil
}

// entrySources translates a resolution into concrete sources. References
// through a derived table are flattened to the subquery's own sources so
// the registry never points at a table that does not exist.
func (a *Analyzer) entrySources(entry *ScopeEntry, column string, confidence float64) []registry.ColumnSource {
	if !entry.subquery {
		return []registry.ColumnSource{{
			Table:      entry.Def.Name,
			Column:     column,
			Confidence: confidence,
		}}
	}

	sub, ok := entry.Def.Column(column)
	if !ok {
		a.diag(DiagColumnFallback, "column %q not produced by derived table %q", column, entry.Alias)
		return nil
	}

	out := make([]registry.ColumnSource, 0, len(sub.Sources))
	for _, src := range sub.Sources {
		conf := src.Confidence
		if confidence < conf {
			conf = confidence
		}
		out = append(out, registry.ColumnSource{Table: src.Table, Column: src.Column, Confidence: conf})
	}
	return out
}

// markGroupBy sets the group-by flag on columns matching a GROUP BY key,
// by alias, column name, or whole-expression equality. A qualified key
// only matches an item carrying the same qualifier.
func (a *Analyzer) markGroupBy(groupBy []parser.Expr, items []parser.SelectItem, cols []*registry.ColumnLineage) {
	for _, key := range groupBy {
		rendered := parser.Render(key)
		keyRef, _ := key.(*parser.ColumnRef)

		for i, col := range cols {
			if strings.EqualFold(rendered, col.Name) {
				col.GroupBy = true
				continue
			}
			if items[i].Expr != nil && strings.EqualFold(rendered, parser.Render(items[i].Expr)) {
				col.GroupBy = true
				continue
			}
			if keyRef != nil {
				itemRef, ok := items[i].Expr.(*parser.ColumnRef)
				if ok && strings.EqualFold(keyRef.Column, itemRef.Column) &&
					(keyRef.Table == "" || strings.EqualFold(keyRef.Table, itemRef.Table)) {
					col.GroupBy = true
				}
			}
		}
	}
}

// inferColumnName names an unaliased output expression.
func inferColumnName(expr parser.Expr, index int) string {
	switch e := expr.(type) {
	case *parser.ColumnRef:
		return e.Column
	case *parser.CastExpr:
		return inferColumnName(e.Expr, index)
	case *parser.FuncCall:
		return strings.ToLower(e.Name)
	default:
		return fmt.Sprintf("column%d", index)
	}
}
