package analyzer

import (
	"github.com/datatrail-labs/datatrail/internal/registry"
	"github.com/datatrail-labs/datatrail/pkg/parser"
)

// analyzeCreate handles CREATE TABLE AS and CREATE VIEW: CTEs register
// first, then every SELECT output becomes a column of the new table.
func (a *Analyzer) analyzeCreate(stmt *parser.CreateTableStmt) error {
	if existing, ok := a.registry.Get(stmt.Name); ok {
		populated := existing.ColumnCount() > 0 &&
			(existing.Kind == registry.KindBaseTable || existing.Kind == registry.KindExternal)
		if populated && !stmt.OrReplace && !a.allowRedefine {
			return &DuplicateTableError{
				Table:       stmt.Name,
				DefinedAt:   existing.CreatedAt,
				RedefinedAt: a.stmt,
			}
		}
	}

	cols, err := a.analyzeSelect(stmt.Select)
	if err != nil {
		return err
	}

	kind := registry.KindBaseTable
	switch {
	case stmt.View:
		kind = registry.KindView
	case stmt.Temp:
		kind = registry.KindTemp
	}

	// Structural redefinition: the later statement wins outright.
	def := a.registry.Replace(stmt.Name, kind)
	for _, col := range cols {
		def.AddColumn(col)
	}

	a.log.Debug("registered table",
		"table", stmt.Name, "kind", string(kind), "columns", def.ColumnCount())
	return nil
}
