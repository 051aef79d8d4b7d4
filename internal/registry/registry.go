// Package registry holds table definitions and column lineage accumulated
// over one script analysis. The registry is the single shared state of an
// analysis run: statement analyzers write to it in statement order, and the
// transitive resolver reads it once analysis is complete.
package registry

import (
	"strings"
	"sync"
)

// TableKind classifies how a table entered the registry.
type TableKind string

// TableKind values.
const (
	KindBaseTable TableKind = "BASE_TABLE"
	KindView      TableKind = "VIEW"
	KindTemp      TableKind = "TEMP"
	KindCTE       TableKind = "CTE"
	KindSubquery  TableKind = "SUBQUERY"
	KindExternal  TableKind = "EXTERNAL"
)

// kindRank orders kinds for upgrade-only registration. A table first seen
// as EXTERNAL (referenced before defined) upgrades to a concrete kind when
// a later statement defines it; the reverse never happens.
var kindRank = map[TableKind]int{
	KindExternal:  0,
	KindSubquery:  1,
	KindCTE:       2,
	KindTemp:      3,
	KindView:      4,
	KindBaseTable: 4,
}

// ColumnSource is one (table, column) contribution to a column's lineage.
type ColumnSource struct {
	Table      string
	Column     string
	Confidence float64
}

// Qualified returns the source as "table.column".
func (s ColumnSource) Qualified() string {
	return s.Table + "." + s.Column
}

// key returns the case-insensitive identity used for deduplication.
func (s ColumnSource) key() string {
	return strings.ToLower(s.Table) + "." + strings.ToLower(s.Column)
}

// ColumnLineage records one target column's derivation: where its values
// come from and how they are computed.
type ColumnLineage struct {
	Name          string
	Sources       []ColumnSource
	Expression    string // normalized expression text, empty for passthrough
	Aggregate     bool
	AggregateFunc string // SUM, AVG, MIN, MAX, COUNT, COUNT DISTINCT
	GroupBy       bool
}

// AddSource appends a source, collapsing duplicates by (table, column) and
// keeping the highest confidence seen.
func (c *ColumnLineage) AddSource(src ColumnSource) {
	for i := range c.Sources {
		if c.Sources[i].key() == src.key() {
			if src.Confidence > c.Sources[i].Confidence {
				c.Sources[i].Confidence = src.Confidence
			}
			return
		}
	}
	c.Sources = append(c.Sources, src)
}

// MergeFrom folds another lineage for the same column into this one. Sources
// accumulate, an existing expression is never blanked, aggregate and group-by
// markers stick once set.
func (c *ColumnLineage) MergeFrom(other *ColumnLineage) {
	for _, src := range other.Sources {
		c.AddSource(src)
	}
	if c.Expression == "" {
		c.Expression = other.Expression
	}
	if other.Aggregate {
		c.Aggregate = true
		if c.AggregateFunc == "" {
			c.AggregateFunc = other.AggregateFunc
		}
	}
	if other.GroupBy {
		c.GroupBy = true
	}
}

// Clone returns a deep copy.
func (c *ColumnLineage) Clone() *ColumnLineage {
	dup := *c
	dup.Sources = make([]ColumnSource, len(c.Sources))
	copy(dup.Sources, c.Sources)
	return &dup
}

// TableDefinition represents one table, view, CTE, derived subquery, or
// external source table. Column lookups are case-insensitive; insertion
// order is preserved for display.
type TableDefinition struct {
	Name        string // original-case name from first registration
	Kind        TableKind
	CreatedAt   int // statement index that created this table
	SourceTable bool

	columns map[string]*ColumnLineage
	order   []string
}

// NewTableDefinition creates an empty definition.
func NewTableDefinition(name string, kind TableKind) *TableDefinition {
	return &TableDefinition{
		Name:    name,
		Kind:    kind,
		columns: make(map[string]*ColumnLineage),
	}
}

// AddColumn inserts a column or, when it already exists, merges the new
// lineage into the existing entry without discarding prior sources.
func (t *TableDefinition) AddColumn(col *ColumnLineage) {
	key := strings.ToLower(col.Name)
	if existing, ok := t.columns[key]; ok {
		existing.MergeFrom(col)
		return
	}
	t.columns[key] = col
	t.order = append(t.order, key)
}

// Column returns the lineage for a column by case-insensitive name.
func (t *TableDefinition) Column(name string) (*ColumnLineage, bool) {
	col, ok := t.columns[strings.ToLower(name)]
	return col, ok
}

// HasColumn reports whether the column exists.
func (t *TableDefinition) HasColumn(name string) bool {
	_, ok := t.columns[strings.ToLower(name)]
	return ok
}

// Columns returns all column lineages in insertion order.
func (t *TableDefinition) Columns() []*ColumnLineage {
	cols := make([]*ColumnLineage, 0, len(t.order))
	for _, key := range t.order {
		cols = append(cols, t.columns[key])
	}
	return cols
}

// ColumnNames returns the display names of all columns in insertion order.
func (t *TableDefinition) ColumnNames() []string {
	names := make([]string, 0, len(t.order))
	for _, key := range t.order {
		names = append(names, t.columns[key].Name)
	}
	return names
}

// ColumnCount returns the number of columns.
func (t *TableDefinition) ColumnCount() int {
	return len(t.order)
}

// AllSources returns every distinct source referenced by this table's
// columns, in first-seen order.
func (t *TableDefinition) AllSources() []ColumnSource {
	seen := make(map[string]struct{})
	var sources []ColumnSource
	for _, key := range t.order {
		for _, src := range t.columns[key].Sources {
			if _, ok := seen[src.key()]; ok {
				continue
			}
			seen[src.key()] = struct{}{}
			sources = append(sources, src)
		}
	}
	return sources
}

// hasLineage reports whether any column records at least one source.
func (t *TableDefinition) hasLineage() bool {
	for _, key := range t.order {
		if len(t.columns[key].Sources) > 0 {
			return true
		}
	}
	return false
}

// Registry maps normalized table names to definitions for one analysis run.
// Writes happen in strict statement order during orchestration; reads after
// orchestration may be concurrent.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*TableDefinition
	order  []string
	stmt   int
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		tables: make(map[string]*TableDefinition),
	}
}

// normalize returns the case-insensitive identity of a table name.
func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register returns the definition for the given name, creating it when
// absent. Registration is idempotent: an existing definition is returned
// as is, except that its kind is upgraded when the new kind outranks it
// (an EXTERNAL placeholder becoming a real table).
func (r *Registry) Register(name string, kind TableKind) *TableDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(name)
	if existing, ok := r.tables[key]; ok {
		if kindRank[kind] > kindRank[existing.Kind] {
			existing.Kind = kind
			existing.SourceTable = false
		}
		return existing
	}

	def := NewTableDefinition(name, kind)
	def.CreatedAt = r.stmt
	def.SourceTable = kind == KindExternal
	r.tables[key] = def
	r.order = append(r.order, key)
	return def
}

// Replace installs a fresh definition under the given name, discarding any
// existing one. Used for explicit redefinition (CREATE OR REPLACE).
func (r *Registry) Replace(name string, kind TableKind) *TableDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(name)
	def := NewTableDefinition(name, kind)
	def.CreatedAt = r.stmt
	if _, ok := r.tables[key]; !ok {
		r.order = append(r.order, key)
	}
	r.tables[key] = def
	return def
}

// AddColumn adds or merges a column lineage on the named table.
// Returns false when the table is not registered.
func (r *Registry) AddColumn(table string, col *ColumnLineage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.tables[normalize(table)]
	if !ok {
		return false
	}
	def.AddColumn(col)
	return true
}

// Get returns the definition for a table by case-insensitive name.
func (r *Registry) Get(name string) (*TableDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tables[normalize(name)]
	return def, ok
}

// Has reports whether the table is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Remove deletes a table. Returns whether it existed.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := normalize(name)
	if _, ok := r.tables[key]; !ok {
		return false
	}
	delete(r.tables, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// All returns every definition in registration order.
func (r *Registry) All() []*TableDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]*TableDefinition, 0, len(r.order))
	for _, key := range r.order {
		defs = append(defs, r.tables[key])
	}
	return defs
}

// SourceTables returns the true sources of the analyzed script: EXTERNAL
// tables, plus base tables that record no lineage of their own.
func (r *Registry) SourceTables() []*TableDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []*TableDefinition
	for _, key := range r.order {
		def := r.tables[key]
		if def.Kind == KindExternal || (def.Kind == KindBaseTable && !def.hasLineage()) {
			defs = append(defs, def)
		}
	}
	return defs
}

// AdvanceStatement increments the statement counter and returns the new
// value. Called once per analyzed statement.
func (r *Registry) AdvanceStatement() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stmt++
	return r.stmt
}

// Statement returns the current statement counter.
func (r *Registry) Statement() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stmt
}

// Reset clears all state for a new, independent analysis.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = make(map[string]*TableDefinition)
	r.order = nil
	r.stmt = 0
}
