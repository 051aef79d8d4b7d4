// Package lineage answers transitive queries over a finished registry:
// tracing a column back to its ultimate sources, finding the downstream
// columns affected by a change, and rendering derivation chains.
//
// The resolver never mutates the registry. Cycles and depth overruns
// truncate the affected branch and surface a diagnostic instead of
// failing the query.
package lineage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datatrail-labs/datatrail/internal/analyzer"
	"github.com/datatrail-labs/datatrail/internal/registry"
)

// DefaultMaxDepth bounds traversal depth independently of cycle
// detection, guaranteeing termination on any input.
const DefaultMaxDepth = 100

// NotFoundError reports a query against a table or column the registry
// does not contain.
type NotFoundError struct {
	Table  string
	Column string
}

func (e *NotFoundError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q not found in registry", e.Table)
	}
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

// Node is one hop in a lineage path.
type Node struct {
	Table      string
	Column     string
	Expression string
	Kind       registry.TableKind
}

// Qualified returns the node as "table.column".
func (n Node) Qualified() string {
	return n.Table + "." + n.Column
}

// Path is one complete chain from a target column back toward a source.
// Nodes run target-first. A cyclic path ends at the first revisited node;
// a truncated path ends where the depth limit cut the branch off.
type Path struct {
	Nodes     []Node
	Cyclic    bool
	Truncated bool
}

// HopCount returns the number of edges in the path.
func (p Path) HopCount() int {
	if len(p.Nodes) == 0 {
		return 0
	}
	return len(p.Nodes) - 1
}

// Target returns the first node of the path.
func (p Path) Target() Node { return p.Nodes[0] }

// Source returns the last node of the path.
func (p Path) Source() Node { return p.Nodes[len(p.Nodes)-1] }

// String renders the path as "t2.doubled <- t1.amount <- orders.amount".
func (p Path) String() string {
	parts := make([]string, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		parts = append(parts, n.Qualified())
	}
	s := strings.Join(parts, " <- ")
	switch {
	case p.Cyclic:
		s += " (cyclic)"
	case p.Truncated:
		s += " (truncated)"
	}
	return s
}

// Trace is the result of a trace-to-source query.
type Trace struct {
	Table       string
	Column      string
	Paths       []Path
	Diagnostics []analyzer.Diagnostic
}

// Impact is the result of an impact query: every downstream column that
// transitively depends on the queried one, grouped by table.
type Impact struct {
	Table       string
	Column      string
	Affected    map[string][]string
	Diagnostics []analyzer.Diagnostic
}

// Resolver runs trace, impact, and explain queries against a registry.
// Queries are read-only; concurrent queries against the same registry
// are safe as long as no analysis is writing to it.
type Resolver struct {
	registry *registry.Registry
	maxDepth int
}

// New creates a resolver. A maxDepth of zero or less selects
// DefaultMaxDepth.
func New(reg *registry.Registry, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{registry: reg, maxDepth: maxDepth}
}

// TraceToSource returns every lineage path from the given column back to
// a terminal source. A column with no sources traces to itself with zero
// hops. The error is non-nil only when the table or column is unknown.
func (r *Resolver) TraceToSource(table, column string) (*Trace, error) {
	def, ok := r.registry.Get(table)
	if !ok {
		return nil, &NotFoundError{Table: table}
	}
	if !def.HasColumn(column) {
		// External tables analyzed without schema information carry no
		// column list; treat the queried column as a bare source.
		if def.Kind == registry.KindExternal {
			node := Node{Table: def.Name, Column: column, Kind: def.Kind}
			return &Trace{Table: def.Name, Column: column, Paths: []Path{{Nodes: []Node{node}}}}, nil
		}
		return nil, &NotFoundError{Table: def.Name, Column: column}
	}

	st := &traceState{maxDepth: r.maxDepth}
	r.traceDFS(st, table, column, nil, map[string]bool{}, 0)
	return &Trace{
		Table:       def.Name,
		Column:      column,
		Paths:       st.paths,
		Diagnostics: st.diags,
	}, nil
}

type traceState struct {
	maxDepth int
	paths    []Path
	diags    []analyzer.Diagnostic
}

func (st *traceState) diag(code, format string, args ...any) {
	st.diags = append(st.diags, analyzer.Diagnostic{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

func nodeKey(table, column string) string {
	return strings.ToLower(table) + "." + strings.ToLower(column)
}

// node resolves the registry's view of a (table, column) pair, falling
// back to an external node for tables the registry never saw.
func (r *Resolver) node(table, column string) Node {
	n := Node{Table: table, Column: column, Kind: registry.KindExternal}
	def, ok := r.registry.Get(table)
	if !ok {
		return n
	}
	n.Table = def.Name
	n.Kind = def.Kind
	if col, ok := def.Column(column); ok {
		n.Column = col.Name
		n.Expression = col.Expression
	}
	return n
}

func (r *Resolver) traceDFS(st *traceState, table, column string, path []Node, visited map[string]bool, depth int) {
	key := nodeKey(table, column)
	node := r.node(table, column)

	if visited[key] {
		st.paths = append(st.paths, Path{Nodes: appendNode(path, node), Cyclic: true})
		st.diag(analyzer.DiagCyclicLineage, "cyclic lineage: %s revisited on its own path", node.Qualified())
		return
	}
	if depth > st.maxDepth {
		st.paths = append(st.paths, Path{Nodes: append([]Node(nil), path...), Truncated: true})
		st.diag(analyzer.DiagMaxDepth, "trace exceeded max depth %d at %s", st.maxDepth, node.Qualified())
		return
	}

	path = appendNode(path, node)

	def, ok := r.registry.Get(table)
	if !ok {
		st.paths = append(st.paths, Path{Nodes: path})
		return
	}
	col, ok := def.Column(column)
	if !ok || len(col.Sources) == 0 {
		st.paths = append(st.paths, Path{Nodes: path})
		return
	}

	visited[key] = true
	for _, src := range col.Sources {
		r.traceDFS(st, src.Table, src.Column, path, copyVisited(visited), depth+1)
	}
}

// appendNode copies the path before extending it so sibling branches
// never share backing arrays.
func appendNode(path []Node, n Node) []Node {
	out := make([]Node, len(path), len(path)+1)
	copy(out, path)
	return append(out, n)
}

func copyVisited(visited map[string]bool) map[string]bool {
	out := make(map[string]bool, len(visited))
	for k, v := range visited {
		out[k] = v
	}
	return out
}

// FindImpact returns every downstream column that transitively depends
// on the given column, grouped by table name with column names sorted.
func (r *Resolver) FindImpact(table, column string) (*Impact, error) {
	def, ok := r.registry.Get(table)
	if !ok {
		return nil, &NotFoundError{Table: table}
	}

	st := &traceState{maxDepth: r.maxDepth}
	affected := make(map[string]map[string]struct{})
	r.impactDFS(st, affected, def.Name, column, map[string]bool{}, 0)

	out := &Impact{
		Table:       def.Name,
		Column:      column,
		Affected:    make(map[string][]string, len(affected)),
		Diagnostics: st.diags,
	}
	for tbl, cols := range affected {
		names := make([]string, 0, len(cols))
		for name := range cols {
			names = append(names, name)
		}
		sort.Strings(names)
		out.Affected[tbl] = names
	}
	return out, nil
}

func (r *Resolver) impactDFS(st *traceState, affected map[string]map[string]struct{}, table, column string, visited map[string]bool, depth int) {
	if depth > st.maxDepth {
		st.diag(analyzer.DiagMaxDepth, "impact scan exceeded max depth %d at %s.%s", st.maxDepth, table, column)
		return
	}
	key := nodeKey(table, column)
	if visited[key] {
		return
	}
	visited[key] = true

	for _, def := range r.registry.All() {
		for _, col := range def.Columns() {
			for _, src := range col.Sources {
				if !strings.EqualFold(src.Table, table) || !strings.EqualFold(src.Column, column) {
					continue
				}
				if affected[def.Name] == nil {
					affected[def.Name] = make(map[string]struct{})
				}
				affected[def.Name][col.Name] = struct{}{}
				r.impactDFS(st, affected, def.Name, col.Name, visited, depth+1)
			}
		}
	}
}

// SourceTablesFor returns the deduplicated, sorted set of terminal
// source tables a column ultimately derives from. Cyclic and truncated
// branches do not contribute.
func (r *Resolver) SourceTablesFor(table, column string) ([]string, error) {
	trace, err := r.TraceToSource(table, column)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var tables []string
	for _, path := range trace.Paths {
		if path.Cyclic || path.Truncated || len(path.Nodes) == 0 {
			continue
		}
		name := path.Source().Table
		if _, ok := seen[strings.ToLower(name)]; ok {
			continue
		}
		seen[strings.ToLower(name)] = struct{}{}
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

// ExplainCalculation renders a single derivation chain for a column, one
// line per hop. Computed columns show their expression, pure copies show
// the column they copy, and terminal nodes are marked as sources. At a
// multi-source column the chain follows the first source and notes how
// many alternatives were skipped.
func (r *Resolver) ExplainCalculation(table, column string) ([]string, error) {
	def, ok := r.registry.Get(table)
	if !ok {
		return nil, &NotFoundError{Table: table}
	}
	if !def.HasColumn(column) && def.Kind != registry.KindExternal {
		return nil, &NotFoundError{Table: def.Name, Column: column}
	}

	var lines []string
	visited := map[string]bool{}
	for depth := 0; depth <= r.maxDepth; depth++ {
		indent := strings.Repeat("  ", depth)
		node := r.node(table, column)
		key := nodeKey(table, column)
		if visited[key] {
			lines = append(lines, fmt.Sprintf("%s%s (cycle)", indent, node.Qualified()))
			return lines, nil
		}
		visited[key] = true

		cur, ok := r.registry.Get(table)
		var col *registry.ColumnLineage
		if ok {
			col, _ = cur.Column(column)
		}
		if col == nil || len(col.Sources) == 0 {
			lines = append(lines, fmt.Sprintf("%s%s (source)", indent, node.Qualified()))
			return lines, nil
		}

		var line string
		if col.Expression != "" {
			line = fmt.Sprintf("%s%s = %s (computed)", indent, node.Qualified(), col.Expression)
		} else {
			line = fmt.Sprintf("%s%s = %s (direct)", indent, node.Qualified(), col.Sources[0].Qualified())
		}
		if len(col.Sources) > 1 {
			line += fmt.Sprintf(" [+%d more sources]", len(col.Sources)-1)
		}
		lines = append(lines, line)

		table, column = col.Sources[0].Table, col.Sources[0].Column
	}
	lines = append(lines, fmt.Sprintf("... (max depth %d exceeded)", r.maxDepth))
	return lines, nil
}
