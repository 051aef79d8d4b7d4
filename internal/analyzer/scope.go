package analyzer

import (
	"strings"

	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// ScopeEntry is one table visible to a statement: the definition it
// resolves to, the alias it is addressed by, and its known column list
// (nil when the structure is unknown).
type ScopeEntry struct {
	Alias   string // alias or bare table name, display case
	Def     *registry.TableDefinition
	Columns []string // known columns, nil = schema unknown

	// subquery is set for derived tables. Their lineage lives only in
	// this entry, not in the registry, so references through them are
	// flattened to the subquery's own sources during extraction.
	subquery bool
}

// SchemaKnown reports whether the entry's column list is known.
func (e *ScopeEntry) SchemaKnown() bool {
	return e.Columns != nil
}

// HasColumn reports whether the known schema contains the column.
// Always false when the schema is unknown.
func (e *ScopeEntry) HasColumn(name string) bool {
	for _, col := range e.Columns {
		if strings.EqualFold(col, name) {
			return true
		}
	}
	return false
}

// Scope is the ordered set of tables visible to one SELECT, in FROM-clause
// order, with alias lookup.
type Scope struct {
	entries []*ScopeEntry
	byAlias map[string]*ScopeEntry

	// using maps a JOIN USING column (lowercase) to the entries that
	// co-own it, left table first.
	using map[string][]*ScopeEntry
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		byAlias: make(map[string]*ScopeEntry),
		using:   make(map[string][]*ScopeEntry),
	}
}

// Add appends an entry. The entry becomes addressable by its alias and,
// for unaliased tables, by the bare and qualified table names.
func (s *Scope) Add(entry *ScopeEntry) {
	s.entries = append(s.entries, entry)

	s.byAlias[strings.ToLower(entry.Alias)] = entry

	name := strings.ToLower(entry.Def.Name)
	if _, ok := s.byAlias[name]; !ok {
		s.byAlias[name] = entry
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		if bare := name[i+1:]; bare != "" {
			if _, ok := s.byAlias[bare]; !ok {
				s.byAlias[bare] = entry
			}
		}
	}
}

// Lookup finds an entry by alias or table name, case-insensitively.
func (s *Scope) Lookup(alias string) (*ScopeEntry, bool) {
	entry, ok := s.byAlias[strings.ToLower(alias)]
	return entry, ok
}

// Entries returns all entries in FROM-clause order.
func (s *Scope) Entries() []*ScopeEntry {
	return s.entries
}

// Len returns the number of tables in scope.
func (s *Scope) Len() int {
	return len(s.entries)
}

// UsingOwners returns the co-owning entries for a JOIN USING column,
// left table first, or nil when the column is not a USING key.
func (s *Scope) UsingOwners(column string) []*ScopeEntry {
	return s.using[strings.ToLower(column)]
}

// buildScope assembles the scope for one SELECT core: the FROM source and
// every JOIN target, resolved through registry, schema provider, or
// EXTERNAL auto-registration, with derived tables analyzed recursively.
func (a *Analyzer) buildScope(core *parser.SelectCore) (*Scope, error) {
	scope := NewScope()
	if core.From == nil {
		return scope, nil
	}

	left, err := a.addTableRef(scope, core.From.Source)
	if err != nil {
		return nil, err
	}

	for _, join := range core.From.Joins {
		right, err := a.addTableRef(scope, join.Right)
		if err != nil {
			return nil, err
		}

		for _, col := range join.Using {
			key := strings.ToLower(col)
			if len(scope.using[key]) == 0 && left != nil {
				scope.using[key] = append(scope.using[key], left)
			}
			if right != nil {
				scope.using[key] = append(scope.using[key], right)
			}
		}
	}

	return scope, nil
}

// addTableRef resolves one table reference into a scope entry.
func (a *Analyzer) addTableRef(scope *Scope, ref parser.TableRef) (*ScopeEntry, error) {
	switch t := ref.(type) {
	case *parser.TableName:
		entry := a.resolveTableName(t)
		scope.Add(entry)
		return entry, nil

	case *parser.DerivedTable:
		entry, err := a.analyzeDerivedTable(t)
		if err != nil {
			return nil, err
		}
		scope.Add(entry)
		return entry, nil

	default:
		return nil, nil
	}
}

// resolveTableName finds or creates the definition for a named table.
// Priority: current-statement CTE binding, registry entry, schema
// provider, then EXTERNAL auto-registration with a diagnostic.
func (a *Analyzer) resolveTableName(t *parser.TableName) *ScopeEntry {
	name := t.Qualified()
	alias := t.Alias
	if alias == "" {
		alias = t.Name
	}

	if b, ok := a.lookupCTE(name); ok {
		return &ScopeEntry{Alias: alias, Def: b.def, Columns: b.def.ColumnNames(), subquery: b.shadowed}
	}

	if def, ok := a.registry.Get(name); ok {
		return &ScopeEntry{Alias: alias, Def: def, Columns: a.knownColumns(def, name)}
	}

	if a.provider != nil {
		if cols, ok := a.provider.TableColumns(name); ok {
			def := a.registry.Register(name, registry.KindExternal)
			for _, col := range cols {
				def.AddColumn(&registry.ColumnLineage{Name: col})
			}
			return &ScopeEntry{Alias: alias, Def: def, Columns: cols}
		}
	}

	a.diag(DiagExternalTable, "table %q is not defined in the script and has no known schema; treating as external source", name)
	def := a.registry.Register(name, registry.KindExternal)
	return &ScopeEntry{Alias: alias, Def: def, Columns: nil}
}

// knownColumns returns the best available column list for a definition:
// its own recorded columns, or the schema provider's answer.
func (a *Analyzer) knownColumns(def *registry.TableDefinition, name string) []string {
	if def.ColumnCount() > 0 {
		return def.ColumnNames()
	}
	if a.provider != nil {
		if cols, ok := a.provider.TableColumns(name); ok {
			return cols
		}
	}
	return nil
}

// analyzeDerivedTable runs a full extraction over a FROM-clause subquery
// and wraps the result in a SUBQUERY-kind definition that lives only in
// the scope, never in the registry.
func (a *Analyzer) analyzeDerivedTable(t *parser.DerivedTable) (*ScopeEntry, error) {
	cols, err := a.analyzeSelect(t.Select)
	if err != nil {
		return nil, err
	}

	def := registry.NewTableDefinition(t.Alias, registry.KindSubquery)
	names := make([]string, 0, len(cols))
	for _, col := range cols {
		def.AddColumn(col)
		names = append(names, col.Name)
	}

	return &ScopeEntry{Alias: t.Alias, Def: def, Columns: names, subquery: true}, nil
}
